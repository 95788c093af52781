// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func counterValue(f *dto.MetricFamily, labels map[string]string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		matched := true
		for _, pair := range m.GetLabel() {
			if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
				matched = false
				break
			}
		}
		if matched {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecordRequest_NormalizesLabels(t *testing.T) {
	RecordRequest("cors", "ok", "basic")
	RecordRequest("bogus-mode", "ok", "also-bogus")

	f := findMetric(t, "corsgate_requests_total")
	require.NotNil(t, f)

	assert.GreaterOrEqual(t, counterValue(f, map[string]string{"mode": "cors", "tainting": "basic"}), 1.0)
	assert.GreaterOrEqual(t, counterValue(f, map[string]string{"mode": "unknown", "tainting": "unknown"}), 1.0)
}

func TestRecordCorsError(t *testing.T) {
	RecordCorsError("missing_allow_origin_header", false)
	RecordCorsError("preflight_missing_allow_private_network", true)

	f := findMetric(t, "corsgate_cors_errors_total")
	require.NotNil(t, f)

	assert.GreaterOrEqual(t, counterValue(f, map[string]string{
		"kind":       "missing_allow_origin_header",
		"is_warning": "false",
	}), 1.0)
	assert.GreaterOrEqual(t, counterValue(f, map[string]string{
		"kind":       "preflight_missing_allow_private_network",
		"is_warning": "true",
	}), 1.0)
}

func TestRecordPreflightCacheLookup(t *testing.T) {
	RecordPreflightCacheLookup(true)
	RecordPreflightCacheLookup(false)

	f := findMetric(t, "corsgate_preflight_cache_lookups_total")
	require.NotNil(t, f)
	assert.GreaterOrEqual(t, counterValue(f, map[string]string{"result": "hit"}), 1.0)
	assert.GreaterOrEqual(t, counterValue(f, map[string]string{"result": "miss"}), 1.0)
}
