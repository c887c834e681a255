package hal

import (
	"context"
	"fmt"
	"time"
)

// Timer drives the periodic interrupt handler.
type Timer interface {
	// Start calls isr at the given frequency until ctx is done.
	// isr calls never overlap.
	Start(ctx context.Context, frequency int, isr func()) error
}

// TickerTimer is a Timer backed by a wall clock ticker.
type TickerTimer struct{}

func (TickerTimer) Start(ctx context.Context, frequency int, isr func()) error {
	if frequency <= 0 {
		return fmt.Errorf("invalid timer frequency: %d", frequency)
	}
	ticker := time.NewTicker(time.Second / time.Duration(frequency))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			isr()
		}
	}
}
