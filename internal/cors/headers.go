// SPDX-License-Identifier: MIT

package cors

import (
	"net/http"
	"sort"
	"strings"
)

// Header names owned by the CORS protocol.
const (
	HeaderOrigin = "Origin"

	HeaderRequestMethod         = "Access-Control-Request-Method"
	HeaderRequestHeaders        = "Access-Control-Request-Headers"
	HeaderRequestPrivateNetwork = "Access-Control-Request-Private-Network"

	HeaderAllowOrigin         = "Access-Control-Allow-Origin"
	HeaderAllowMethods        = "Access-Control-Allow-Methods"
	HeaderAllowHeaders        = "Access-Control-Allow-Headers"
	HeaderAllowCredentials    = "Access-Control-Allow-Credentials"
	HeaderAllowPrivateNetwork = "Access-Control-Allow-Private-Network"
	HeaderMaxAge              = "Access-Control-Max-Age"
	HeaderExposeHeaders       = "Access-Control-Expose-Headers"

	HeaderTimingAllowOrigin = "Timing-Allow-Origin"

	Wildcard = "*"
)

// Methods a caller may never issue through this pipeline. CONNECT is
// rejected in every mode; TRACE and TRACK only survive no-cors.
var forbiddenMethods = map[string]bool{
	"CONNECT": true,
	"TRACE":   true,
	"TRACK":   true,
}

// IsForbiddenMethod reports whether method is on the forbidden list.
// The comparison is case-insensitive per RFC 9110 method normalization.
func IsForbiddenMethod(method string) bool {
	return forbiddenMethods[strings.ToUpper(method)]
}

// Request headers that must never appear in the ordinary header bag.
// They may only travel in the cors-exempt bag under factory control.
var forbiddenRequestHeaders = map[string]bool{
	"host":                true,
	"proxy-authorization": true,
}

// IsForbiddenRequestHeader reports whether name may not be set by callers.
func IsForbiddenRequestHeader(name string) bool {
	lower := strings.ToLower(name)
	return forbiddenRequestHeaders[lower] || strings.HasPrefix(lower, "proxy-") || strings.HasPrefix(lower, "sec-")
}

// IsValidToken reports whether s is a non-empty RFC 9110 token. Methods
// and header names must satisfy this; anything else (embedded CR/LF,
// spaces, control bytes) is a header-injection attempt and fails before
// any network activity.
func IsValidToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// IsValidHeaderValue reports whether v is free of CR, LF and NUL bytes.
func IsValidHeaderValue(v string) bool {
	return !strings.ContainsAny(v, "\r\n\x00")
}

// IsCorsSafelistedMethod reports whether method never requires a
// preflight on its own. See https://fetch.spec.whatwg.org/#cors-safelisted-method.
func IsCorsSafelistedMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodPost:
		return true
	default:
		return false
	}
}

// safelisted request headers and, where applicable, their value limits.
// See https://fetch.spec.whatwg.org/#cors-safelisted-request-header.
const safelistedValueLimit = 128

var safelistedContentTypes = map[string]bool{
	"application/x-www-form-urlencoded": true,
	"multipart/form-data":               true,
	"text/plain":                        true,
}

func isCorsSafelistedHeader(name, value string) bool {
	if len(value) > safelistedValueLimit {
		return false
	}
	switch strings.ToLower(name) {
	case "accept", "accept-language", "content-language":
		return true
	case "content-type":
		mime := strings.ToLower(strings.TrimSpace(value))
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
		return safelistedContentTypes[mime]
	default:
		return false
	}
}

// CorsUnsafeRequestHeaderNames returns the byte-lowercased, sorted names
// of headers that take the request outside the simple-request rules. An
// empty result together with a safelisted method means no preflight.
func CorsUnsafeRequestHeaderNames(headers http.Header) []string {
	var names []string
	for name, values := range headers {
		value := ""
		if len(values) > 0 {
			value = strings.Join(values, ",")
		}
		if !isCorsSafelistedHeader(name, value) {
			names = append(names, strings.ToLower(name))
		}
	}
	sort.Strings(names)
	return names
}

// ParseExposedHeaders parses Access-Control-Expose-Headers on a
// cors-tainted response. Invalid tokens are dropped rather than failing
// the response; a wildcard exposes everything only for non-credentialed
// requests.
func ParseExposedHeaders(headers http.Header, credentials CredentialsMode) []string {
	raw := headers.Get(HeaderExposeHeaders)
	if raw == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == Wildcard && credentials != CredentialsInclude {
			return []string{Wildcard}
		}
		if IsValidToken(tok) {
			out = append(out, strings.ToLower(tok))
		}
	}
	sort.Strings(out)
	return out
}
