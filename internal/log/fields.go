// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldDevToolsID    = "devtools_request_id"
	FieldCorrelationID = "correlation_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Request fields
	FieldMethod          = "method"
	FieldURL             = "url"
	FieldOrigin          = "origin"
	FieldInitiator       = "initiator"
	FieldMode            = "mode"
	FieldCredentialsMode = "credentials_mode"

	// Outcome fields
	FieldNetError     = "net_error"
	FieldCorsError    = "cors_error"
	FieldTainting     = "response_tainting"
	FieldRedirectHops = "redirect_hops"
	FieldIsWarning    = "is_warning"
	FieldAddressSpace = "target_address_space"
)
