// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus counters of the CORS pipeline.
package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corsgate_requests_total",
		Help: "Total number of CORS-checked requests by mode, outcome, and response tainting",
	}, []string{"mode", "outcome", "tainting"})

	corsErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corsgate_cors_errors_total",
		Help: "Total number of CORS protocol failures by error kind and warning flag",
	}, []string{"kind", "is_warning"})

	redirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corsgate_redirects_total",
		Help: "Total number of redirect hops by origin crossing",
	}, []string{"crossing"})

	badMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corsgate_bad_messages_total",
		Help: "Total number of malformed caller requests rejected before any network activity",
	})
)

// RecordRequest records one terminal loader outcome.
func RecordRequest(mode, outcome, tainting string) {
	requestsTotal.WithLabelValues(
		normalizeModeLabel(mode),
		normalizeToken(outcome),
		normalizeTaintingLabel(tainting),
	).Inc()
}

// RecordCorsError records one structured CORS failure.
func RecordCorsError(kind string, isWarning bool) {
	corsErrorsTotal.WithLabelValues(normalizeToken(kind), strconv.FormatBool(isWarning)).Inc()
}

// RecordRedirect records one followed redirect hop.
func RecordRedirect(crossOrigin bool) {
	crossing := "same_origin"
	if crossOrigin {
		crossing = "cross_origin"
	}
	redirectsTotal.WithLabelValues(crossing).Inc()
}

// RecordBadMessage records one caller protocol violation.
func RecordBadMessage() {
	badMessagesTotal.Inc()
}

func normalizeModeLabel(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "same-origin", "no-cors", "cors", "cors-with-forced-preflight", "navigate":
		return strings.ToLower(strings.TrimSpace(mode))
	default:
		return "unknown"
	}
}

func normalizeTaintingLabel(tainting string) string {
	switch strings.ToLower(strings.TrimSpace(tainting)) {
	case "basic", "cors", "opaque":
		return strings.ToLower(strings.TrimSpace(tainting))
	default:
		return "unknown"
	}
}

func normalizeToken(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
