// SPDX-License-Identifier: MIT

// Package network defines the boundary between the CORS pipeline and the
// underlying HTTP transport: the request/response records exchanged across
// it, the asynchronous loader contract, and an http.Client-backed
// implementation. The package knows nothing about CORS policy beyond the
// vocabulary types it transports.
package network

import (
	"net/http"
	"net/url"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

// NetError is the coarse completion code of one logical request. CORS
// failures ride on ErrFailed with a structured cors.ErrorStatus attached;
// transport failures carry no CORS detail.
type NetError string

const (
	OK                  NetError = "ok"
	ErrFailed           NetError = "failed"
	ErrInvalidArgument  NetError = "invalid_argument"
	ErrAborted          NetError = "aborted"
	ErrTooManyRedirects NetError = "too_many_redirects"
	ErrConnectionFailed NetError = "connection_failed"

	// ErrBlockedByPrivateNetworkAccessChecks signals that the transport
	// observed a connection into a more-private address space than the
	// request was prepared for. The attached CorsError carries the
	// observed target space so the caller can retry with a preflight.
	ErrBlockedByPrivateNetworkAccessChecks NetError = "blocked_by_private_network_access_checks"
)

// Status is the single terminal outcome of a request leg.
type Status struct {
	Error     NetError          `json:"error"`
	CorsError *cors.ErrorStatus `json:"cors_error,omitempty"`
}

// IsSuccess reports whether the leg completed cleanly.
func (s Status) IsSuccess() bool { return s.Error == OK }

// Request is the loadable request record. It is immutable once handed to
// a loader; redirects produce rewritten copies at well-defined points in
// the CORS layer.
type Request struct {
	URL    *url.URL
	Method string

	// Headers is the caller-controlled bag, subject to the forbidden
	// header checks. CorsExemptHeaders bypass CORS header filtering and
	// survive cross-origin redirects under factory policy.
	Headers           http.Header
	CorsExemptHeaders http.Header

	Mode            cors.RequestMode
	CredentialsMode cors.CredentialsMode
	RedirectMode    cors.RedirectMode

	// RequestInitiator is the origin on whose behalf the request is made.
	// Only trusted browser-process callers may omit it, and only in
	// no-cors or navigate mode.
	RequestInitiator *cors.Origin

	// IsolatedWorldOrigin substitutes for the initiator in origin access
	// list lookups when factory trust permits.
	IsolatedWorldOrigin *cors.Origin

	ClientSecurityState *cors.ClientSecurityState

	// TargetAddressSpace records the address space learned from a failed
	// private-network probe; it scopes the PNA preflight to this request.
	TargetAddressSpace cors.IPAddressSpace

	IsRevalidating bool

	SiteForCookies                string
	UpdateFirstPartyURLOnRedirect bool

	DevToolsRequestID string

	Body []byte
}

// Clone returns a copy with independent header bags. The URL pointer is
// shared; callers replace it wholesale on redirects.
func (r *Request) Clone() *Request {
	out := *r
	out.Headers = r.Headers.Clone()
	out.CorsExemptHeaders = r.CorsExemptHeaders.Clone()
	return &out
}

// ResponseHead carries the observable part of a response. The CORS layer
// annotates it with tainting before relaying it upward.
type ResponseHead struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	ResponseTainting   cors.ResponseTainting
	ExposedHeaderNames []string
	TimingAllowPassed  bool
	TargetAddressSpace cors.IPAddressSpace
}

// RedirectInfo describes one redirect hop as reported by the transport.
// NewMethod already reflects the status-code method rewrite (303 forces
// GET; 301/302 rewrite POST to GET).
type RedirectInfo struct {
	StatusCode        int
	NewURL            *url.URL
	NewMethod         string
	NewReferrer       string
	NewSiteForCookies string
}

// RedirectMethod applies the standard method rewrite for a redirect with
// the given status code.
func RedirectMethod(statusCode int, method string) string {
	switch statusCode {
	case http.StatusSeeOther:
		if method != http.MethodHead {
			return http.MethodGet
		}
	case http.StatusMovedPermanently, http.StatusFound:
		if method == http.MethodPost {
			return http.MethodGet
		}
	}
	return method
}
