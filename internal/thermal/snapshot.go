package thermal

import (
	"github.com/markusressel/heat2go/internal/protection"
)

type ChannelSnapshot struct {
	Id      string  `json:"id"`
	Kind    string  `json:"kind"`
	Raw     int32   `json:"raw"`
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
	Power   uint8   `json:"power"`
	Heated  bool    `json:"heated"`
	Idle    bool    `json:"idle"`
	Runaway string  `json:"runaway,omitempty"`
}

type FanSnapshot struct {
	Id        string `json:"id"`
	Requested uint8  `json:"requested"`
	Power     uint8  `json:"power"`
}

type FaultSnapshot struct {
	Channel string `json:"channel"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is a consistent enough view of all channels for reporting.
type Snapshot struct {
	TimeMs   uint32            `json:"timeMs"`
	Halted   bool              `json:"halted"`
	Fault    *FaultSnapshot    `json:"fault,omitempty"`
	Channels []ChannelSnapshot `json:"channels"`
	Fans     []FanSnapshot     `json:"fans"`
}

// Snapshot reads the state of all channels and fans. Safe to call from any goroutine.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		TimeMs:   m.hal.NowMs(),
		Halted:   m.halted.Load(),
		Channels: make([]ChannelSnapshot, 0, len(m.channels)),
		Fans:     make([]FanSnapshot, 0, len(m.fans)),
	}
	if fault := m.fault.Load(); fault != nil {
		s.Fault = &FaultSnapshot{
			Channel: fault.Channel,
			Kind:    fault.Kind.String(),
			Message: fault.Error(),
		}
	}
	for _, ch := range m.channels {
		cs := ChannelSnapshot{
			Id:      ch.spec.Id,
			Kind:    ch.spec.Kind.String(),
			Raw:     ch.raw.Load(),
			Current: ch.current.Load(),
			Target:  ch.target.Load(),
			Power:   ch.power(),
			Heated:  ch.heated(),
			Idle:    ch.idleExpired.Load(),
		}
		if ch.runaway != nil {
			cs.Runaway = protection.RunawayState(ch.runawayState.Load()).String()
		}
		s.Channels = append(s.Channels, cs)
	}
	for _, f := range m.fans {
		s.Fans = append(s.Fans, FanSnapshot{
			Id:        f.spec.Id,
			Requested: f.FanSpeed(),
			Power:     f.output.Power(),
		})
	}
	return s
}

// Channel returns the snapshot of a single channel.
func (s Snapshot) Channel(id string) (ChannelSnapshot, bool) {
	for _, ch := range s.Channels {
		if ch.Id == id {
			return ch, true
		}
	}
	return ChannelSnapshot{}, false
}
