package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/bridge"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/healthcheck"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/storage"
	"github.com/vitos/trade_lifecycle/internal/web"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trade live through the host bridge",
	Long: `Connects to the host bridge websocket, restores lifecycle state from SQLite and runs the
decision loop until interrupted or halted. Metrics and state are served on server.port.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runBridgeURL string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runBridgeURL, "bridge", "", "bridge websocket URL (overrides bridge.url)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runBridgeURL != "" {
		cfg.Bridge.URL = runBridgeURL
	}
	if cfg.Bridge.URL == "" {
		return errors.New("bridge.url is required for live trading")
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()
	log = log.With(zap.String("label", cfg.Engine.Label), zap.String("symbol", cfg.Engine.Symbol))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	client := bridge.NewClient(cfg.Bridge.URL, cfg.Bridge.RequestTimeout, log.Named("bridge"))
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect bridge: %w", err)
	}
	defer client.Close()

	var sink domain.LivenessSink
	if cfg.Healthcheck.URL != "" {
		sink = healthcheck.NewPinger(cfg.Healthcheck.URL, cfg.Healthcheck.Timeout)
	}

	engine, liveness, err := buildEngine(cfg, engineParts{
		host:    client,
		store:   store,
		journal: store,
		sink:    sink,
	}, log)
	if err != nil {
		return err
	}

	if err := restoreLifecycle(ctx, client, engine.Label(), engine.Submit); err != nil {
		log.Warn("Failed to restore open positions", zap.Error(err))
	}

	client.OnEvent(func(ev domain.Event) {
		if !engine.Submit(ev) {
			log.Warn("Event queue full, dropping event", zap.String("kind", string(ev.Kind)))
		}
	})

	if liveness.Enabled() {
		liveness.Start(ctx, cfg.Healthcheck.Interval, engine.Submit)
	}

	server := web.NewServer(cfg.Server.Port, engine, store, log.Named("web"))
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Web server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Web server shutdown", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-client.Done():
			log.Error("Bridge connection closed")
			cancel()
		case <-runCtx.Done():
		}
	}()

	return engine.Run(runCtx)
}

// restoreLifecycle replays the host's open positions as position_opened events so state is
// loaded before the first bar.
func restoreLifecycle(ctx context.Context, account domain.AccountProvider, label string, submit func(domain.Event) bool) error {
	positions, err := account.Positions(ctx)
	if err != nil {
		return err
	}
	for i := range positions {
		if positions[i].Label != label {
			continue
		}
		pos := positions[i]
		submit(domain.Event{Kind: domain.EventPositionOpened, At: time.Now(), Position: &pos})
	}
	return nil
}
