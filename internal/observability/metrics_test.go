package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, name, kind string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if kindLabelMatches(metric, kind) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func kindLabelMatches(metric *dto.Metric, kind string) bool {
	for _, label := range metric.GetLabel() {
		if label.GetName() == "kind" && label.GetValue() == kind {
			return true
		}
		if label.GetName() == "reason" && label.GetValue() == kind {
			return true
		}
	}
	return false
}

func TestRecordActivityAppended(t *testing.T) {
	before := counterValue(t, "unistellar_ledger_activities_appended_total", "planning")

	RecordActivityAppended("planning", time.Now().UTC())

	after := counterValue(t, "unistellar_ledger_activities_appended_total", "planning")
	require.Equal(t, before+1, after)
}

func TestRecordActivityRejected(t *testing.T) {
	before := counterValue(t, "unistellar_ledger_activities_rejected_total", "invalid_payload")

	RecordActivityRejected("invalid_payload")

	after := counterValue(t, "unistellar_ledger_activities_rejected_total", "invalid_payload")
	require.Equal(t, before+1, after)
}
