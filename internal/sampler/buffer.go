package sampler

import (
	"sync/atomic"

	"github.com/markusressel/heat2go/internal/sensors"
)

// RawBuffer hands oversampled readings from the interrupt to the main loop.
//
// The interrupt is the only writer of values and only writes while ready is
// false. The main loop is the only reader and only reads while ready is true.
// The store of ready publishes values, Release hands the buffer back.
type RawBuffer struct {
	ready  atomic.Bool
	values []sensors.Raw
}

func NewRawBuffer(size int) *RawBuffer {
	return &RawBuffer{
		values: make([]sensors.Raw, size),
	}
}

// publish copies the accumulated sums if the previous readings have been
// consumed. It returns false if the readings were dropped.
func (b *RawBuffer) publish(sums []uint32) bool {
	if b.ready.Load() {
		return false
	}
	for i, sum := range sums {
		b.values[i] = sensors.Raw(sum)
	}
	b.ready.Store(true)
	return true
}

// Ready reports whether unread readings are available.
func (b *RawBuffer) Ready() bool {
	return b.ready.Load()
}

// Acquire copies the published readings into dst if available.
func (b *RawBuffer) Acquire(dst []sensors.Raw) bool {
	if !b.ready.Load() {
		return false
	}
	copy(dst, b.values)
	return true
}

// Release allows the interrupt to publish the next readings.
func (b *RawBuffer) Release() {
	b.ready.Store(false)
}
