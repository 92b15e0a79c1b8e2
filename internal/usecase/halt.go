package usecase

import (
	"fmt"
	"sync"

	"github.com/vitos/trade_lifecycle/internal/domain"
)

// Halter latches the engine into the halted state. It never resets.
type Halter struct {
	mu     sync.RWMutex
	reason error
}

// Trip records the first cause and returns an error wrapping ErrHalted.
func (h *Halter) Trip(cause error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reason == nil {
		h.reason = cause
		metricHalted.Set(1)
	}
	return h.errLocked()
}

func (h *Halter) Halted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reason != nil
}

// Err is nil until the latch trips.
func (h *Halter) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.reason == nil {
		return nil
	}
	return h.errLocked()
}

func (h *Halter) errLocked() error {
	return fmt.Errorf("%w: %w", domain.ErrHalted, h.reason)
}
