package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/trade_lifecycle/internal/domain"
	"go.uber.org/zap"
)

// LivenessReporter pings an external health check while the engine is alive. While the market is
// open the decision loop drives the pings; while it is closed a ticker asks the loop to check.
// Pings are handed to a delivery goroutine through a one-slot queue, so the decision loop never
// waits on the sink.
type LivenessReporter struct {
	sink     domain.LivenessSink
	enabled  bool
	logger   *zap.Logger
	lastTick int64
	hasTick  bool

	pending chan string
	deliver sync.Once
}

// NewLivenessReporter returns a reporter that never pings when simulation is true or sink is nil.
func NewLivenessReporter(sink domain.LivenessSink, simulation bool, logger *zap.Logger) *LivenessReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LivenessReporter{
		sink:    sink,
		enabled: sink != nil && !simulation,
		logger:  logger,
		pending: make(chan string, 1),
	}
}

func (r *LivenessReporter) Enabled() bool {
	return r.enabled
}

// OnDecisionTick requests a ping at most once per bar-minute.
func (r *LivenessReporter) OnDecisionTick(barTime time.Time) {
	minute := barTime.Truncate(time.Minute).Unix()
	if r.hasTick && r.lastTick == minute {
		return
	}
	r.lastTick = minute
	r.hasTick = true
	r.request("decision")
}

// OnLivenessCheck handles the ticker's event. Pings only when the market is closed, since the
// decision loop covers open hours.
func (r *LivenessReporter) OnLivenessCheck(marketOpen bool) {
	if marketOpen {
		r.logger.Debug("Market is open. Liveness reported via decision loop")
		return
	}
	r.logger.Debug("Market is closed. Reporting liveness from timer")
	r.request("timer")
}

// Start runs the delivery goroutine and, when interval and submit are set, a ticker that submits a
// liveness_check event every interval. Both stop when ctx is done. The ticker goroutine never
// touches engine state.
func (r *LivenessReporter) Start(ctx context.Context, interval time.Duration, submit func(domain.Event) bool) {
	if !r.enabled {
		return
	}
	r.deliver.Do(func() { go r.run(ctx) })

	if interval <= 0 || submit == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if !submit(domain.Event{Kind: domain.EventLivenessCheck, At: now}) {
					r.logger.Debug("Engine queue full, dropped liveness check")
				}
			}
		}
	}()
}

// request queues a ping without blocking. A ping already waiting makes this one redundant.
func (r *LivenessReporter) request(source string) {
	if !r.enabled {
		return
	}
	select {
	case r.pending <- source:
	default:
		metricLiveness.WithLabelValues("dropped").Inc()
		r.logger.Debug("Liveness ping already pending", zap.String("source", source))
	}
}

func (r *LivenessReporter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case source := <-r.pending:
			r.ping(ctx, source)
		}
	}
}

func (r *LivenessReporter) ping(ctx context.Context, source string) {
	if err := r.sink.Ping(ctx); err != nil {
		metricLiveness.WithLabelValues("error").Inc()
		r.logger.Debug("Liveness ping failed", zap.String("source", source), zap.Error(err))
		return
	}
	metricLiveness.WithLabelValues("ok").Inc()
}
