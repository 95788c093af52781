// SPDX-License-Identifier: MIT

package preflight

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

// Preflight results default to a short lifetime and are clamped so a
// misconfigured server cannot pin a permission for days.
const (
	defaultResultTTL = 5 * time.Second
	maxResultTTL     = 2 * time.Hour
)

// Result is the interpreted outcome of one successful preflight response.
type Result struct {
	Methods        []string  `json:"methods"`
	Headers        []string  `json:"headers"`
	MethodWildcard bool      `json:"method_wildcard"`
	HeaderWildcard bool      `json:"header_wildcard"`
	Credentials    bool      `json:"credentials"`
	PrivateNetwork bool      `json:"private_network"`
	Expiry         time.Time `json:"expiry"`
}

// Expired reports whether the result is past its lifetime at now.
func (r *Result) Expired(now time.Time) bool { return now.After(r.Expiry) }

// AllowsMethod checks the requested method against the preflight grant.
// The wildcard grant does not cover credentialed requests.
func (r *Result) AllowsMethod(method string, credentials cors.CredentialsMode) bool {
	if r.MethodWildcard && credentials != cors.CredentialsInclude {
		return true
	}
	if cors.IsCorsSafelistedMethod(method) {
		return true
	}
	upper := strings.ToUpper(method)
	for _, m := range r.Methods {
		if m == upper {
			return true
		}
	}
	return false
}

// DisallowedHeader returns the first requested unsafe header the grant
// does not cover, or "" when all are allowed.
func (r *Result) DisallowedHeader(unsafeNames []string, credentials cors.CredentialsMode) string {
	if r.HeaderWildcard && credentials != cors.CredentialsInclude {
		return ""
	}
	for _, name := range unsafeNames {
		found := false
		for _, h := range r.Headers {
			if h == name {
				found = true
				break
			}
		}
		if !found {
			return name
		}
	}
	return ""
}

// parseResult interprets the Access-Control-Allow-* headers of a
// preflight response that already passed the origin check. The
// private-network header is checked separately, after the method and
// header grants, so a warn-only policy can forgive just that check.
func parseResult(headers http.Header, now time.Time) (*Result, *cors.ErrorStatus) {
	result := &Result{Expiry: now.Add(resultTTL(headers))}

	if raw := headers.Get(cors.HeaderAllowMethods); raw != "" {
		for _, tok := range strings.Split(raw, ",") {
			tok = strings.TrimSpace(tok)
			if tok == cors.Wildcard {
				result.MethodWildcard = true
				continue
			}
			if !cors.IsValidToken(tok) {
				return nil, cors.NewErrorStatus(cors.ErrInvalidAllowMethodsPreflightResponse, tok)
			}
			result.Methods = append(result.Methods, strings.ToUpper(tok))
		}
	}

	if raw := headers.Get(cors.HeaderAllowHeaders); raw != "" {
		for _, tok := range strings.Split(raw, ",") {
			tok = strings.TrimSpace(tok)
			if tok == cors.Wildcard {
				result.HeaderWildcard = true
				continue
			}
			if !cors.IsValidToken(tok) {
				return nil, cors.NewErrorStatus(cors.ErrInvalidAllowHeadersPreflightResponse, tok)
			}
			result.Headers = append(result.Headers, strings.ToLower(tok))
		}
	}

	result.Credentials = strings.TrimSpace(headers.Get(cors.HeaderAllowCredentials)) == "true"

	return result, nil
}

// checkPrivateNetwork validates Access-Control-Allow-Private-Network on a
// PNA preflight response.
func checkPrivateNetwork(headers http.Header) *cors.ErrorStatus {
	values := headers.Values(cors.HeaderAllowPrivateNetwork)
	if len(values) == 0 {
		return &cors.ErrorStatus{Kind: cors.ErrPreflightMissingAllowPrivateNetwork}
	}
	if v := strings.TrimSpace(values[0]); v != "true" {
		return cors.NewErrorStatus(cors.ErrPreflightInvalidAllowPrivateNetwork, v)
	}
	return nil
}

func resultTTL(headers http.Header) time.Duration {
	raw := strings.TrimSpace(headers.Get(cors.HeaderMaxAge))
	if raw == "" {
		return defaultResultTTL
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds < 0 {
		return defaultResultTTL
	}
	ttl := time.Duration(seconds) * time.Second
	if ttl > maxResultTTL {
		return maxResultTTL
	}
	return ttl
}
