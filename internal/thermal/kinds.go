package thermal

import (
	"fmt"
	"strings"
)

// ChannelId indexes the channels of a Manager in configuration order.
type ChannelId int

type ChannelKind uint8

const (
	Hotend ChannelKind = iota
	Bed
	Chamber
	Cooler
	Probe
	Board
	Redundant
)

var channelKindNames = map[ChannelKind]string{
	Hotend:    "hotend",
	Bed:       "bed",
	Chamber:   "chamber",
	Cooler:    "cooler",
	Probe:     "probe",
	Board:     "board",
	Redundant: "redundant",
}

func (k ChannelKind) String() string {
	if name, ok := channelKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ChannelKind(%d)", uint8(k))
}

// Actuated reports whether channels of this kind may drive an output.
func (k ChannelKind) Actuated() bool {
	switch k {
	case Hotend, Bed, Chamber, Cooler:
		return true
	default:
		return false
	}
}

// overshoot is the distance kept between the highest allowed target and the maximum temperature.
func (k ChannelKind) overshoot() float64 {
	switch k {
	case Hotend:
		return 15
	case Bed, Chamber:
		return 10
	default:
		return 0
	}
}

func ParseChannelKind(name string) (ChannelKind, error) {
	for kind, n := range channelKindNames {
		if strings.EqualFold(n, name) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown channel kind '%s'", name)
}

type ControlKind uint8

const (
	ControlNone ControlKind = iota
	ControlPid
	ControlMpc
	ControlBangBang
)

func (k ControlKind) String() string {
	switch k {
	case ControlNone:
		return "none"
	case ControlPid:
		return "pid"
	case ControlMpc:
		return "mpc"
	case ControlBangBang:
		return "bangBang"
	default:
		return fmt.Sprintf("ControlKind(%d)", uint8(k))
	}
}

func ParseControlKind(name string) (ControlKind, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return ControlNone, nil
	case "pid":
		return ControlPid, nil
	case "mpc":
		return ControlMpc, nil
	case "bangbang":
		return ControlBangBang, nil
	default:
		return 0, fmt.Errorf("unknown control kind '%s', use one of: pid | mpc | bangBang", name)
	}
}

type AutotuneMethod uint8

const (
	AutotunePid AutotuneMethod = iota
	AutotuneMpc
)

func (m AutotuneMethod) String() string {
	switch m {
	case AutotunePid:
		return "pid"
	case AutotuneMpc:
		return "mpc"
	default:
		return fmt.Sprintf("AutotuneMethod(%d)", uint8(m))
	}
}

func ParseAutotuneMethod(name string) (AutotuneMethod, error) {
	switch strings.ToLower(name) {
	case "pid":
		return AutotunePid, nil
	case "mpc":
		return AutotuneMpc, nil
	default:
		return 0, fmt.Errorf("unknown autotune method '%s'", name)
	}
}
