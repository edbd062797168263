package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/charlie0129/batmon/pkg/snapshot"
)

var (
	publishes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batmon_publish_total",
		Help: "Total number of snapshots published by the monitor.",
	})
	emitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batmon_snapshot_emitted_total",
		Help: "Total number of distinct snapshot lines written to stdout.",
	})
	alertsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batmon_alert_fired_total",
		Help: "Total number of alert command invocations.",
	})
	alertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batmon_alert_command_failures_total",
		Help: "Total number of alert commands that exited with a non-zero status.",
	})
	percentage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batmon_battery_percentage",
		Help: "Battery charge percentage of the latest snapshot.",
	})
	wattage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batmon_battery_wattage",
		Help: "Power draw in watts of the latest snapshot.",
	})
)

// ObserveSnapshot records a published snapshot.
func ObserveSnapshot(s snapshot.Snapshot) {
	publishes.Inc()
	percentage.Set(s.Percentage)
	wattage.Set(s.Wattage)
}

// SnapshotEmitted records a line written to stdout.
func SnapshotEmitted() {
	emitted.Inc()
}

// AlertFired records an alert command invocation.
func AlertFired() {
	alertsFired.Inc()
}

// AlertCommandFailed records a non-zero alert command exit.
func AlertCommandFailed() {
	alertFailures.Inc()
}
