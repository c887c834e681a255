package thermal

import (
	"sync/atomic"

	"github.com/markusressel/heat2go/internal/protection"
	"github.com/markusressel/heat2go/internal/softpwm"
)

type fan struct {
	spec   FanSpec
	output *softpwm.Output

	auto        []*channel
	partCooling []*channel

	requested atomic.Uint32
	autoOn    bool
}

// FanSpeed returns the requested speed, the MPC model accounts for the
// airflow the user asked for.
func (f *fan) FanSpeed() uint8 {
	return uint8(f.requested.Load())
}

func (f *fan) setSpeed(speed uint8) {
	f.requested.Store(uint32(speed))
}

// apply writes the effective speed to the output.
func (f *fan) apply() {
	if f.spec.Auto != nil {
		if f.autoOn {
			f.output.SetPower(f.spec.Auto.Speed)
		} else {
			f.output.SetPower(0)
		}
		return
	}

	scaler := uint32(protection.FullFanScale)
	for _, ch := range f.partCooling {
		scaler = min(scaler, uint32(ch.fanScaler))
	}
	f.output.SetPower(uint8(f.requested.Load() * scaler / protection.FullFanScale))
}

// updateAuto switches an auto fan by the temperature of its channels.
func (f *fan) updateAuto() {
	if f.spec.Auto == nil {
		return
	}
	on := false
	for _, ch := range f.auto {
		if ch.current.Load() > f.spec.Auto.Temperature {
			on = true
			break
		}
	}
	f.autoOn = on
}
