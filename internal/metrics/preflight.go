// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	preflightsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corsgate_preflights_total",
		Help: "Total number of preflight checks by outcome and private-network flag",
	}, []string{"outcome", "private_network"})

	preflightCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corsgate_preflight_cache_lookups_total",
		Help: "Total number of preflight cache lookups by hit/miss",
	}, []string{"result"})

	privateNetworkWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corsgate_private_network_warnings_total",
		Help: "Total number of private network access failures downgraded to warnings by policy",
	})
)

// RecordPreflight records one executed preflight check.
func RecordPreflight(outcome string, privateNetwork bool) {
	preflightsTotal.WithLabelValues(normalizeToken(outcome), strconv.FormatBool(privateNetwork)).Inc()
}

// RecordPreflightCacheLookup records one cache probe.
func RecordPreflightCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	preflightCacheLookups.WithLabelValues(result).Inc()
}

// RecordPrivateNetworkWarning records one warn-policy suppression.
func RecordPrivateNetworkWarning() {
	privateNetworkWarnings.Inc()
}
