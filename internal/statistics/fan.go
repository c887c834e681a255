package statistics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const fanSubsystem = "fan"

type FanCollector struct {
	source    SnapshotSource
	requested *prometheus.Desc
	power     *prometheus.Desc
}

func NewFanCollector(source SnapshotSource) *FanCollector {
	return &FanCollector{
		source: source,
		requested: prometheus.NewDesc(prometheus.BuildFQName(namespace, fanSubsystem, "requested"),
			"Requested speed of the fan, 0-255",
			[]string{"id"}, nil,
		),
		power: prometheus.NewDesc(prometheus.BuildFQName(namespace, fanSubsystem, "power"),
			"Effective power level of the fan output, 0-255",
			[]string{"id"}, nil,
		),
	}
}

func (collector *FanCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.requested
	ch <- collector.power
}

// Collect implements required collect function for all prometheus collectors
func (collector *FanCollector) Collect(ch chan<- prometheus.Metric) {
	for _, fan := range collector.source.Snapshot().Fans {
		ch <- prometheus.MustNewConstMetric(collector.requested, prometheus.GaugeValue, float64(fan.Requested), fan.Id)
		ch <- prometheus.MustNewConstMetric(collector.power, prometheus.GaugeValue, float64(fan.Power), fan.Id)
	}
}
