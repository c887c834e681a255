package statistics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const managerSubsystem = "manager"

// FaultsTotal counts reported thermal errors.
var FaultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: managerSubsystem,
	Name:      "faults_total",
	Help:      "Number of reported thermal errors",
}, []string{"channel", "kind", "fatal"})

func RecordFault(channel string, kind string, fatal bool) {
	FaultsTotal.WithLabelValues(channel, kind, strconv.FormatBool(fatal)).Inc()
}

type ManagerCollector struct {
	source SnapshotSource
	halted *prometheus.Desc
	uptime *prometheus.Desc
}

func NewManagerCollector(source SnapshotSource) *ManagerCollector {
	return &ManagerCollector{
		source: source,
		halted: prometheus.NewDesc(prometheus.BuildFQName(namespace, managerSubsystem, "halted"),
			"1 if a fatal thermal error disabled all heaters",
			nil, nil,
		),
		uptime: prometheus.NewDesc(prometheus.BuildFQName(namespace, managerSubsystem, "clock_milliseconds"),
			"Millisecond counter of the board",
			nil, nil,
		),
	}
}

func (collector *ManagerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.halted
	ch <- collector.uptime
}

// Collect implements required collect function for all prometheus collectors
func (collector *ManagerCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := collector.source.Snapshot()
	ch <- prometheus.MustNewConstMetric(collector.halted, prometheus.GaugeValue, boolValue(snapshot.Halted))
	ch <- prometheus.MustNewConstMetric(collector.uptime, prometheus.CounterValue, float64(snapshot.TimeMs))
}
