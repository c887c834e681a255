package statistics

import (
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "heat2go"
)

// SnapshotSource is the view of the thermal core the collectors read from.
type SnapshotSource interface {
	Snapshot() thermal.Snapshot
}

func Register(collector prometheus.Collector) {
	prometheus.MustRegister(collector)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
