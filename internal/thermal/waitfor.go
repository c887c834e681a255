package thermal

import (
	"context"
	"time"

	"github.com/markusressel/heat2go/internal/hal"
)

const (
	DefaultWaitWindow     = 1.0
	DefaultWaitHysteresis = 3.0
	DefaultWaitResidency  = 10 * time.Second
)

// WaitPolicy decides when a channel counts as settled.
type WaitPolicy struct {
	// Window is the distance to the target that starts the residency timer
	Window float64
	// Hysteresis is the distance to the target that restarts the residency timer
	Hysteresis float64
	// Residency is the time the temperature must stay within Hysteresis
	Residency time.Duration
	// Timeout gives up waiting, zero waits forever
	Timeout time.Duration
}

func (p WaitPolicy) withDefaults() WaitPolicy {
	if p.Window <= 0 {
		p.Window = DefaultWaitWindow
	}
	if p.Hysteresis <= 0 {
		p.Hysteresis = DefaultWaitHysteresis
	}
	if p.Residency < 0 {
		p.Residency = 0
	}
	return p
}

// WaitFor pumps Idle until the channel has settled at its target. It returns
// false without an error on timeout. A channel without a target is settled.
func (m *Manager) WaitFor(ctx context.Context, id ChannelId, policy WaitPolicy) (bool, error) {
	ch, err := m.channel(id)
	if err != nil {
		return false, err
	}
	policy = policy.withDefaults()

	start := m.hal.NowMs()
	timeout := uint32(policy.Timeout.Milliseconds())
	residency := uint32(policy.Residency.Milliseconds())
	var residencyStart uint32
	resident := false

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if m.halted.Load() {
			return false, ErrHalted
		}

		m.Idle()

		target := ch.target.Load()
		if target == 0 {
			return true, nil
		}

		now := m.hal.NowMs()
		diff := ch.current.Load() - target
		if diff < 0 {
			diff = -diff
		}
		if !resident {
			if diff < policy.Window {
				resident = true
				residencyStart = now
			}
		} else if diff > policy.Hysteresis {
			residencyStart = now
		}

		if resident && hal.Elapsed(now, residencyStart+residency) {
			return true, nil
		}
		if timeout > 0 && hal.Elapsed(now, start+timeout) {
			return false, nil
		}
	}
}
