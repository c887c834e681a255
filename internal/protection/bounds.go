package protection

import (
	"time"

	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/sensors"
)

type BoundFault uint8

const (
	BoundOk BoundFault = iota
	BoundTooCold
	BoundTooHot
)

type BoundConfig struct {
	Bounds sensors.Bounds
	// PreheatTime suppresses the minimum check after a heater is switched on
	PreheatTime time.Duration
	// ConsecutiveLowAllowed is the number of consecutive low readings that trigger the error
	ConsecutiveLowAllowed int
}

// BoundCheck compares raw readings against the precomputed thresholds.
type BoundCheck struct {
	bounds      sensors.Bounds
	preheat     uint32
	lowsAllowed int

	lows       int
	preheatEnd uint32
	preheating bool
}

func NewBoundCheck(config BoundConfig) *BoundCheck {
	if config.ConsecutiveLowAllowed < 1 {
		config.ConsecutiveLowAllowed = 1
	}
	return &BoundCheck{
		bounds:      config.Bounds,
		preheat:     uint32(config.PreheatTime.Milliseconds()),
		lowsAllowed: config.ConsecutiveLowAllowed,
	}
}

func (b *BoundCheck) Bounds() sensors.Bounds {
	return b.bounds
}

// StartPreheat opens the preheat window, called when a heater is switched on.
func (b *BoundCheck) StartPreheat(now uint32) {
	if b.preheat == 0 {
		return
	}
	b.preheatEnd = now + b.preheat
	b.preheating = true
}

// Preheating reports whether the preheat window is open.
func (b *BoundCheck) Preheating(now uint32) bool {
	if b.preheating && hal.Elapsed(now, b.preheatEnd) {
		b.preheating = false
	}
	return b.preheating
}

// Check tests one reading. The maximum is enforced unconditionally, the minimum
// only while heating outside of the preheat window. Low readings during
// preheat neither count nor reset the consecutive low counter.
func (b *BoundCheck) Check(now uint32, raw sensors.Raw, heating bool) BoundFault {
	if b.bounds.TooHot(raw) {
		return BoundTooHot
	}
	if heating && b.bounds.TooCold(raw) {
		// the counter holds while the preheat window is open
		if b.Preheating(now) {
			return BoundOk
		}
		b.lows++
		if b.lows >= b.lowsAllowed {
			return BoundTooCold
		}
		return BoundOk
	}
	b.lows = 0
	return BoundOk
}
