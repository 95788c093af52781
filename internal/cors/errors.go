// SPDX-License-Identifier: MIT

package cors

import "fmt"

// ErrorKind enumerates the decision points at which this layer can reject
// a request. The set mirrors the checks in check.go and the preflight
// controller; transport-level failures (DNS, TLS, resets) are not part of
// this taxonomy and pass through as plain network errors.
type ErrorKind string

const (
	// Admission / redirect checks.
	ErrDisallowedByMode            ErrorKind = "disallowed_by_mode"
	ErrCorsDisabledScheme          ErrorKind = "cors_disabled_scheme"
	ErrRedirectContainsCredentials ErrorKind = "redirect_contains_credentials"

	// Response access checks.
	ErrMissingAllowOriginHeader  ErrorKind = "missing_allow_origin_header"
	ErrMultipleAllowOriginValues ErrorKind = "multiple_allow_origin_values"
	ErrInvalidAllowOriginValue   ErrorKind = "invalid_allow_origin_value"
	ErrAllowOriginMismatch       ErrorKind = "allow_origin_mismatch"
	ErrWildcardOriginNotAllowed  ErrorKind = "wildcard_origin_not_allowed"
	ErrInvalidAllowCredentials   ErrorKind = "invalid_allow_credentials"
	ErrInvalidResponse           ErrorKind = "invalid_response"

	// Preflight checks.
	ErrPreflightInvalidStatus               ErrorKind = "preflight_invalid_status"
	ErrPreflightDisallowedRedirect          ErrorKind = "preflight_disallowed_redirect"
	ErrPreflightMissingAllowOriginHeader    ErrorKind = "preflight_missing_allow_origin_header"
	ErrPreflightMultipleAllowOriginValues   ErrorKind = "preflight_multiple_allow_origin_values"
	ErrPreflightInvalidAllowOriginValue     ErrorKind = "preflight_invalid_allow_origin_value"
	ErrPreflightAllowOriginMismatch         ErrorKind = "preflight_allow_origin_mismatch"
	ErrPreflightWildcardOriginNotAllowed    ErrorKind = "preflight_wildcard_origin_not_allowed"
	ErrPreflightInvalidAllowCredentials     ErrorKind = "preflight_invalid_allow_credentials"
	ErrInvalidAllowMethodsPreflightResponse ErrorKind = "invalid_allow_methods_preflight_response"
	ErrInvalidAllowHeadersPreflightResponse ErrorKind = "invalid_allow_headers_preflight_response"
	ErrMethodDisallowedByPreflightResponse  ErrorKind = "method_disallowed_by_preflight_response"
	ErrHeaderDisallowedByPreflightResponse  ErrorKind = "header_disallowed_by_preflight_response"

	// Private network access.
	ErrUnexpectedPrivateNetworkAccess      ErrorKind = "unexpected_private_network_access"
	ErrPreflightMissingAllowPrivateNetwork ErrorKind = "preflight_missing_allow_private_network"
	ErrPreflightInvalidAllowPrivateNetwork ErrorKind = "preflight_invalid_allow_private_network"
)

// IsPrivateNetworkSpecific reports whether the kind is one of the narrow
// Access-Control-Allow-Private-Network checks that a warn-only policy may
// suppress. Ordinary CORS failures are never suppressed.
func (k ErrorKind) IsPrivateNetworkSpecific() bool {
	switch k {
	case ErrPreflightMissingAllowPrivateNetwork, ErrPreflightInvalidAllowPrivateNetwork:
		return true
	default:
		return false
	}
}

// ErrorStatus is the structured CORS failure carried on a completion. At
// most one instance travels with a terminal status; the optional fields
// exist only for diagnostics.
type ErrorStatus struct {
	Kind ErrorKind `json:"kind"`

	// FailedParameter holds the offending header or method value, when one
	// exists (for example the mismatched Access-Control-Allow-Origin value).
	FailedParameter string `json:"failed_parameter,omitempty"`

	// TargetAddressSpace is set on private-network-access failures.
	TargetAddressSpace IPAddressSpace `json:"target_address_space,omitempty"`
}

// NewErrorStatus builds an ErrorStatus for kind with the offending value.
func NewErrorStatus(kind ErrorKind, failedParameter string) *ErrorStatus {
	return &ErrorStatus{Kind: kind, FailedParameter: failedParameter}
}

func (s *ErrorStatus) String() string {
	if s == nil {
		return "<nil>"
	}
	if s.FailedParameter == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s (%q)", s.Kind, s.FailedParameter)
}
