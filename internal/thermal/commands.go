package thermal

import (
	"fmt"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/ui"
)

// Lookup returns the id of the channel with the given name.
func (m *Manager) Lookup(name string) (ChannelId, error) {
	ch, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	return ch.id, nil
}

// ChannelIds returns the ids of all channels in configuration order.
func (m *Manager) ChannelIds() []ChannelId {
	ids := make([]ChannelId, len(m.channels))
	for i, ch := range m.channels {
		ids[i] = ch.id
	}
	return ids
}

// Spec returns the configuration of a channel.
func (m *Manager) Spec(id ChannelId) (ChannelSpec, error) {
	ch, err := m.channel(id)
	if err != nil {
		return ChannelSpec{}, err
	}
	return ch.spec, nil
}

// SetTarget sets the target temperature of a heated channel, 0 switches it off.
// Targets too close to the maximum temperature are lowered.
func (m *Manager) SetTarget(id ChannelId, celsius float64) error {
	ch, err := m.channel(id)
	if err != nil {
		return err
	}
	if !ch.heated() {
		return fmt.Errorf("%w: %s", ErrNoHeater, ch.name())
	}
	if m.halted.Load() {
		return ErrHalted
	}
	if celsius < 0 {
		celsius = 0
	}
	if ch.spec.MaxTemp > 0 {
		maxTarget := ch.spec.MaxTemp - ch.spec.Kind.overshoot()
		if celsius > maxTarget {
			ui.Warning("Channel %s: target %.1f°C lowered to %.1f°C", ch.name(), celsius, maxTarget)
			celsius = maxTarget
		}
	}
	ch.target.Store(celsius)
	return nil
}

func (m *Manager) GetTarget(id ChannelId) (float64, error) {
	ch, err := m.channel(id)
	if err != nil {
		return 0, err
	}
	return ch.target.Load(), nil
}

func (m *Manager) GetCurrent(id ChannelId) (float64, error) {
	ch, err := m.channel(id)
	if err != nil {
		return 0, err
	}
	return ch.current.Load(), nil
}

// IsHeating reports whether the channel is still below its target.
func (m *Manager) IsHeating(id ChannelId) (bool, error) {
	ch, err := m.channel(id)
	if err != nil {
		return false, err
	}
	return ch.target.Load() > ch.current.Load(), nil
}

// DisableAll sets all targets to zero and switches all heaters off.
func (m *Manager) DisableAll() {
	for _, ch := range m.channels {
		ch.target.Store(0)
		ch.setPower(0)
	}
}

// StartIdleTimer switches a heater off after its configured idle timeout
// until ResetIdleTimer is called.
func (m *Manager) StartIdleTimer(id ChannelId) error {
	ch, err := m.channel(id)
	if err != nil {
		return err
	}
	if !ch.heated() {
		return fmt.Errorf("%w: %s", ErrNoHeater, ch.name())
	}
	ch.startIdleTimer(m.hal.NowMs())
	return nil
}

func (m *Manager) ResetIdleTimer(id ChannelId) error {
	ch, err := m.channel(id)
	if err != nil {
		return err
	}
	ch.resetIdleTimer()
	return nil
}

// SetFanSpeed sets the requested speed of a fan, auto fans ignore it.
func (m *Manager) SetFanSpeed(name string, speed uint8) error {
	for _, f := range m.fans {
		if f.spec.Id == name {
			f.setSpeed(speed)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownFan, name)
}

// Halted reports whether a fatal error permanently disabled all heaters.
func (m *Manager) Halted() bool {
	return m.halted.Load()
}

// Fault returns the error that halted the manager, if any.
func (m *Manager) Fault() *FatalError {
	return m.fault.Load()
}

// Constants returns the current tuning of a channel.
// Must be called from the goroutine calling Task.
func (m *Manager) Constants(id ChannelId) (control_loop.Constants, error) {
	ch, err := m.channel(id)
	if err != nil {
		return control_loop.Constants{}, err
	}
	switch loop := ch.loop.(type) {
	case *control_loop.PidControlLoop:
		c := loop.Constants()
		return control_loop.Constants{Pid: &c}, nil
	case *control_loop.MpcControlLoop:
		c := loop.Constants()
		return control_loop.Constants{Mpc: &c}, nil
	default:
		return control_loop.Constants{}, fmt.Errorf("channel %s has no tunable control", ch.name())
	}
}

// SetConstants replaces the tuning of a channel.
// Must be called from the goroutine calling Task.
func (m *Manager) SetConstants(id ChannelId, constants control_loop.Constants) error {
	ch, err := m.channel(id)
	if err != nil {
		return err
	}
	switch loop := ch.loop.(type) {
	case *control_loop.PidControlLoop:
		if constants.Pid == nil {
			return fmt.Errorf("channel %s uses pid control", ch.name())
		}
		if err := constants.Pid.Validate(); err != nil {
			return err
		}
		loop.SetConstants(*constants.Pid)
	case *control_loop.MpcControlLoop:
		if constants.Mpc == nil {
			return fmt.Errorf("channel %s uses mpc control", ch.name())
		}
		if err := constants.Mpc.Validate(); err != nil {
			return err
		}
		loop.SetConstants(*constants.Mpc)
	default:
		return fmt.Errorf("channel %s has no tunable control", ch.name())
	}
	return nil
}
