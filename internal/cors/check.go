// SPDX-License-Identifier: MIT

package cors

import (
	"net/http"
	"net/url"
	"strings"
)

// IsCorsEnabledScheme reports whether scheme participates in the CORS
// protocol. Factory-level overrides may extend the set at the call site.
func IsCorsEnabledScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

// CheckAccess runs the CORS check on an actual response: exactly one
// Access-Control-Allow-Origin, matching either the wildcard or the exact
// serialized request origin, with the wildcard off limits for credentialed
// requests. "null" matches only a genuinely opaque request origin; it is
// not a wildcard. A nil return means the response may be shared.
func CheckAccess(headers http.Header, credentials CredentialsMode, origin Origin) *ErrorStatus {
	values := headers.Values(HeaderAllowOrigin)
	if len(values) == 0 {
		return NewErrorStatus(ErrMissingAllowOriginHeader, "")
	}
	if len(values) > 1 {
		return NewErrorStatus(ErrMultipleAllowOriginValues, strings.Join(values, ", "))
	}
	allowOrigin := strings.TrimSpace(values[0])

	if allowOrigin == Wildcard {
		// The wildcard cannot vouch for a credentialed request; the server
		// must echo the exact origin.
		if credentials == CredentialsInclude {
			return NewErrorStatus(ErrWildcardOriginNotAllowed, "")
		}
	} else if strings.ContainsAny(allowOrigin, " \t,") {
		return NewErrorStatus(ErrInvalidAllowOriginValue, allowOrigin)
	} else if allowOrigin != origin.Serialize() {
		return NewErrorStatus(ErrAllowOriginMismatch, allowOrigin)
	}

	if credentials == CredentialsInclude {
		if v := strings.TrimSpace(headers.Get(HeaderAllowCredentials)); v != "true" {
			return NewErrorStatus(ErrInvalidAllowCredentials, v)
		}
	}
	return nil
}

// preflightErrorKinds maps the generic access-check kinds onto their
// preflight-specific counterparts so callers can tell which leg failed.
var preflightErrorKinds = map[ErrorKind]ErrorKind{
	ErrMissingAllowOriginHeader:  ErrPreflightMissingAllowOriginHeader,
	ErrMultipleAllowOriginValues: ErrPreflightMultipleAllowOriginValues,
	ErrInvalidAllowOriginValue:   ErrPreflightInvalidAllowOriginValue,
	ErrAllowOriginMismatch:       ErrPreflightAllowOriginMismatch,
	ErrWildcardOriginNotAllowed:  ErrPreflightWildcardOriginNotAllowed,
	ErrInvalidAllowCredentials:   ErrPreflightInvalidAllowCredentials,
}

// CheckPreflightAccess is CheckAccess for the OPTIONS leg, reporting
// preflight-flavored error kinds.
func CheckPreflightAccess(headers http.Header, credentials CredentialsMode, origin Origin) *ErrorStatus {
	status := CheckAccess(headers, credentials, origin)
	if status == nil {
		return nil
	}
	if mapped, ok := preflightErrorKinds[status.Kind]; ok {
		status.Kind = mapped
	}
	return status
}

// RedirectCheck carries the inputs of CheckRedirectLocation. The verdict
// is a pure function of these fields.
type RedirectCheck struct {
	NewURL        *url.URL
	Mode          RequestMode
	Initiator     *Origin
	CorsFlag      bool
	TaintedOrigin bool

	// ExemptSchemes extends the CORS-enabled scheme set by factory policy.
	ExemptSchemes map[string]bool
}

// CheckRedirectLocation validates the target of a redirect hop before the
// hop is followed.
func CheckRedirectLocation(c RedirectCheck) *ErrorStatus {
	if c.NewURL == nil {
		return NewErrorStatus(ErrInvalidResponse, "")
	}

	corsSensitive := c.Mode.IsCorsEnabled()

	if !IsCorsEnabledScheme(c.NewURL.Scheme) && !c.ExemptSchemes[strings.ToLower(c.NewURL.Scheme)] {
		if corsSensitive {
			return NewErrorStatus(ErrCorsDisabledScheme, c.NewURL.Scheme)
		}
	}

	// Embedded userinfo never survives a CORS-flagged chain, nor any
	// cross-origin hop outside no-cors.
	if c.NewURL.User != nil && c.NewURL.User.String() != "" {
		if c.CorsFlag {
			return NewErrorStatus(ErrRedirectContainsCredentials, "")
		}
		crossOrigin := c.Initiator == nil || !c.Initiator.CanAccessURL(c.NewURL)
		if crossOrigin && c.Mode != ModeNoCors {
			return NewErrorStatus(ErrRedirectContainsCredentials, "")
		}
	}
	return nil
}

// TaintingInput bundles the state needed to classify a terminal response.
type TaintingInput struct {
	URL           *url.URL
	Mode          RequestMode
	Initiator     *Origin
	CorsFlag      bool
	TaintedOrigin bool

	// AccessAllowed is true when the origin access list carries a matching
	// allow entry, which suppresses tainting entirely.
	AccessAllowed bool
}

// CalculateResponseTainting classifies a response as basic, cors or
// opaque. Navigation and same-origin chains stay basic; a set cors flag
// means cors; no-cors across origins goes opaque.
func CalculateResponseTainting(in TaintingInput) ResponseTainting {
	if in.AccessAllowed {
		return TaintingBasic
	}
	if in.Mode == ModeNavigate {
		return TaintingBasic
	}
	if in.Initiator == nil {
		// Browser-process no-cors requests carry no initiator; they are
		// trusted and stay basic.
		return TaintingBasic
	}
	sameOrigin := in.Initiator.CanAccessURL(in.URL) && !in.TaintedOrigin
	if in.CorsFlag {
		return TaintingCors
	}
	if sameOrigin {
		return TaintingBasic
	}
	if in.Mode == ModeNoCors {
		return TaintingOpaque
	}
	return TaintingBasic
}

// PassesTimingAllowOrigin evaluates Timing-Allow-Origin for one hop. The
// caller owns the one-way latch across the chain: once a hop fails, the
// chain's timing-allow state stays failed.
func PassesTimingAllowOrigin(headers http.Header, requester Origin) bool {
	raw := headers.Get(HeaderTimingAllowOrigin)
	if raw == "" {
		return false
	}
	serialized := requester.Serialize()
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == Wildcard || tok == serialized {
			return true
		}
	}
	return false
}
