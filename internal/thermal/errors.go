package thermal

import (
	"errors"
	"fmt"

	"github.com/markusressel/heat2go/internal/control_loop"
)

type ErrorKind uint8

const (
	KindMinTemp ErrorKind = iota
	KindMaxTemp
	KindThermalRunaway
	KindThermalMalfunction
	KindRedundantMismatch
	KindSensorFault
	KindHeatingFailed

	KindAutotuneTimeout
	KindAutotuneOvershoot
	KindAutotuneCancelled
	KindAutotuneFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindMinTemp:
		return "MINTEMP triggered"
	case KindMaxTemp:
		return "MAXTEMP triggered"
	case KindThermalRunaway:
		return "thermal runaway"
	case KindThermalMalfunction:
		return "thermal malfunction"
	case KindRedundantMismatch:
		return "redundant sensor mismatch"
	case KindSensorFault:
		return "sensor fault"
	case KindHeatingFailed:
		return "heating failed"
	case KindAutotuneTimeout:
		return "autotune timeout"
	case KindAutotuneOvershoot:
		return "autotune overshoot"
	case KindAutotuneCancelled:
		return "autotune cancelled"
	case KindAutotuneFailed:
		return "autotune failed"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Fatal reports whether errors of this kind halt the manager.
func (k ErrorKind) Fatal() bool {
	return k <= KindHeatingFailed
}

var (
	ErrHalted         = errors.New("thermal manager halted")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrNoHeater       = errors.New("channel has no heater")
	ErrUnknownFan     = errors.New("unknown fan")
	ErrAutotuneBusy   = errors.New("autotune already running")

	ErrAutotuneTimeout   = errors.New("autotune timed out")
	ErrAutotuneOvershoot = errors.New("autotune temperature too high")
	ErrAutotuneCancelled = errors.New("autotune cancelled")
	ErrAutotuneFailed    = errors.New("autotune failed")
)

// autotuneErrorKind maps autotune errors to their kind.
func autotuneErrorKind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrAutotuneTimeout):
		return KindAutotuneTimeout
	case errors.Is(err, ErrAutotuneOvershoot):
		return KindAutotuneOvershoot
	case errors.Is(err, ErrAutotuneCancelled):
		return KindAutotuneCancelled
	default:
		return KindAutotuneFailed
	}
}

// FatalError is the error that halted a Manager.
type FatalError struct {
	Channel string
	Kind    ErrorKind
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Channel, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Channel, e.Kind)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// StatusReporter is told about errors the user has to know about.
type StatusReporter interface {
	ReportFatal(channel string, kind ErrorKind, err error)
	ReportRecoverable(channel string, kind ErrorKind, err error)
}

// MotionStopper halts all motion once the manager halts.
type MotionStopper interface {
	Stop()
}

// MotionSource reports extruder movement for extrusion dependent heater power.
type MotionSource interface {
	control_loop.ExtrusionSource
}

// ConstantsStore persists tuning results.
type ConstantsStore interface {
	SaveConstants(channel string, constants control_loop.Constants) error
}
