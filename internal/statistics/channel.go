package statistics

import (
	"github.com/markusressel/heat2go/internal/protection"
	"github.com/prometheus/client_golang/prometheus"
)

const channelSubsystem = "channel"

var runawayStates = map[string]protection.RunawayState{
	protection.Inactive.String():     protection.Inactive,
	protection.FirstHeating.String(): protection.FirstHeating,
	protection.Stable.String():       protection.Stable,
	protection.Runaway.String():      protection.Runaway,
	protection.Malfunction.String():  protection.Malfunction,
}

type ChannelCollector struct {
	source SnapshotSource

	temperature  *prometheus.Desc
	target       *prometheus.Desc
	power        *prometheus.Desc
	raw          *prometheus.Desc
	idle         *prometheus.Desc
	runawayState *prometheus.Desc
}

func NewChannelCollector(source SnapshotSource) *ChannelCollector {
	return &ChannelCollector{
		source: source,
		temperature: prometheus.NewDesc(prometheus.BuildFQName(namespace, channelSubsystem, "temperature_celsius"),
			"Current temperature of the channel",
			[]string{"id", "kind"}, nil,
		),
		target: prometheus.NewDesc(prometheus.BuildFQName(namespace, channelSubsystem, "target_celsius"),
			"Target temperature of the channel, 0 if off",
			[]string{"id", "kind"}, nil,
		),
		power: prometheus.NewDesc(prometheus.BuildFQName(namespace, channelSubsystem, "power"),
			"Power level of the heater, 0-255",
			[]string{"id", "kind"}, nil,
		),
		raw: prometheus.NewDesc(prometheus.BuildFQName(namespace, channelSubsystem, "raw"),
			"Last raw sensor reading",
			[]string{"id", "kind"}, nil,
		),
		idle: prometheus.NewDesc(prometheus.BuildFQName(namespace, channelSubsystem, "idle"),
			"1 if the idle timeout of the heater has expired",
			[]string{"id", "kind"}, nil,
		),
		runawayState: prometheus.NewDesc(prometheus.BuildFQName(namespace, channelSubsystem, "runaway_state"),
			"State of the thermal runaway monitor (0=Inactive, 1=FirstHeating, 2=Stable, 3=Runaway, 4=Malfunction)",
			[]string{"id", "kind"}, nil,
		),
	}
}

func (collector *ChannelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.temperature
	ch <- collector.target
	ch <- collector.power
	ch <- collector.raw
	ch <- collector.idle
	ch <- collector.runawayState
}

// Collect implements required collect function for all prometheus collectors
func (collector *ChannelCollector) Collect(ch chan<- prometheus.Metric) {
	for _, channel := range collector.source.Snapshot().Channels {
		labels := []string{channel.Id, channel.Kind}
		ch <- prometheus.MustNewConstMetric(collector.temperature, prometheus.GaugeValue, channel.Current, labels...)
		ch <- prometheus.MustNewConstMetric(collector.raw, prometheus.GaugeValue, float64(channel.Raw), labels...)
		if !channel.Heated {
			continue
		}
		ch <- prometheus.MustNewConstMetric(collector.target, prometheus.GaugeValue, channel.Target, labels...)
		ch <- prometheus.MustNewConstMetric(collector.power, prometheus.GaugeValue, float64(channel.Power), labels...)
		ch <- prometheus.MustNewConstMetric(collector.idle, prometheus.GaugeValue, boolValue(channel.Idle), labels...)
		if state, ok := runawayStates[channel.Runaway]; ok {
			ch <- prometheus.MustNewConstMetric(collector.runawayState, prometheus.GaugeValue, float64(state), labels...)
		}
	}
}
