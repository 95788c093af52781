// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Fetch attributes
	FetchModeKey        = "fetch.mode"
	FetchInitiatorKey   = "fetch.initiator"
	FetchCredentialsKey = "fetch.credentials"
	FetchTaintingKey    = "fetch.tainting"
	FetchRedirectsKey   = "fetch.redirects"

	// Preflight attributes
	PreflightCachedKey         = "preflight.cached"
	PreflightPrivateNetworkKey = "preflight.private_network"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// FetchAttributes creates fetch-related span attributes. Empty fields
// are omitted so spans for anonymous requests stay compact.
func FetchAttributes(mode, initiator, credentials string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if mode != "" {
		attrs = append(attrs, attribute.String(FetchModeKey, mode))
	}
	if initiator != "" {
		attrs = append(attrs, attribute.String(FetchInitiatorKey, initiator))
	}
	if credentials != "" {
		attrs = append(attrs, attribute.String(FetchCredentialsKey, credentials))
	}
	return attrs
}

// OutcomeAttributes creates span attributes for a completed fetch.
func OutcomeAttributes(tainting string, redirects int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(FetchTaintingKey, tainting),
		attribute.Int(FetchRedirectsKey, redirects),
	}
}

// PreflightAttributes creates preflight-related span attributes.
func PreflightAttributes(cached, privateNetwork bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(PreflightCachedKey, cached),
		attribute.Bool(PreflightPrivateNetworkKey, privateNetwork),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
