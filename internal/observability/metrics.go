package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unistellar",
		Subsystem: "ledger",
		Name:      "activities_appended_total",
		Help:      "Number of activity events appended to the ledger, labeled by kind.",
	}, []string{"kind"})

	lastAppendGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "unistellar",
		Subsystem: "ledger",
		Name:      "last_activity_appended_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity appended to the ledger.",
	})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unistellar",
		Subsystem: "ledger",
		Name:      "activities_rejected_total",
		Help:      "Number of activity submissions rejected before append, labeled by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(activitiesAppended, lastAppendGauge, rejectedCounter)
}

// RecordActivityAppended updates the append counter and watermark gauge.
func RecordActivityAppended(kind string, ts time.Time) {
	activitiesAppended.WithLabelValues(kind).Inc()
	if ts.IsZero() {
		return
	}
	lastAppendGauge.Set(float64(ts.Unix()))
}

// RecordActivityRejected counts a validation rejection by reason.
func RecordActivityRejected(reason string) {
	rejectedCounter.WithLabelValues(reason).Inc()
}
