// SPDX-License-Identifier: MIT

// Package loader implements the CORS request pipeline: one CorsURLLoader
// per logical request orchestrates admission checks, preflights, redirect
// handling, response validation and private network access policy, and
// relays a single terminal outcome to its caller. A Factory validates
// inbound parameters against its trust boundary and mints loaders.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors/originaccess"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors/preflight"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/network"
)

// TrustParams describes the caller behind a factory. A trusted caller
// (the browser process equivalent) may omit initiators in no-cors and
// navigate modes, supply client security state and isolated world origins,
// and rewrite redirect target URLs.
type TrustParams struct {
	IsTrusted bool
	ProcessID int
}

// Config wires a Factory to its collaborators.
type Config struct {
	Trust TrustParams

	// ClientSecurityState set here overrides any state carried on an
	// individual request.
	ClientSecurityState *cors.ClientSecurityState

	OriginAccess *originaccess.Holder
	Preflight    *preflight.Controller
	Network      network.Factory
	Observer     Observer

	// ExemptSchemes extends the CORS-enabled scheme set for redirect
	// location checks.
	ExemptSchemes map[string]bool
}

// Factory validates requests and creates one CorsURLLoader per request.
type Factory struct {
	cfg Config
}

// NewFactory builds a factory. Network is the only hard requirement.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Network == nil {
		return nil, errors.New("loader: network factory is required")
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.OriginAccess == nil {
		cfg.OriginAccess = originaccess.NewHolder(nil)
	}
	return &Factory{cfg: cfg}, nil
}

// badRequestError carries the dual reporting of an admission failure: the
// diagnostic reason for the bad-message channel and the terminal status
// for the completion channel.
type badRequestError struct {
	reason string
	status network.Status
}

func (e *badRequestError) Error() string { return e.reason }

func badRequest(reason string) *badRequestError {
	return &badRequestError{
		reason: reason,
		status: network.Status{Error: network.ErrInvalidArgument},
	}
}

// CreateLoaderAndStart validates req against the factory trust boundary
// and, if admitted, starts a loader for it. Validation failures are
// reported on the bad-message channel and completed with InvalidArgument
// before any network activity; the returned error is non-nil in that case
// and the returned loader is nil.
func (f *Factory) CreateLoaderAndStart(ctx context.Context, req *network.Request, delegate network.Delegate) (*CorsURLLoader, error) {
	if err := f.validate(req); err != nil {
		f.cfg.Observer.OnBadMessage(f.cfg.Trust.ProcessID, err.reason)
		delegate.OnComplete(err.status)
		return nil, err
	}

	l := newCorsURLLoader(f, req, delegate)
	l.start(ctx)
	return l, nil
}

func (f *Factory) validate(req *network.Request) *badRequestError {
	if req == nil || req.URL == nil {
		return badRequest("request without url")
	}
	if err := validateMethod(req.Method, req.Mode); err != nil {
		return err
	}
	if name := forbiddenHeaderIn(req.Headers); name != "" {
		return badRequest(fmt.Sprintf("forbidden header %q in request headers", name))
	}

	switch req.Mode {
	case cors.ModeSameOrigin, cors.ModeCors, cors.ModeCorsWithForcedPreflight:
		if req.RequestInitiator == nil {
			return badRequest("cors without initiator")
		}
	case cors.ModeNoCors, cors.ModeNavigate:
		if req.RequestInitiator == nil && !f.cfg.Trust.IsTrusted {
			return badRequest("missing initiator from untrusted caller")
		}
	default:
		return badRequest(fmt.Sprintf("unknown request mode %q", req.Mode))
	}

	if req.CredentialsMode == cors.CredentialsSameOrigin && req.RequestInitiator == nil {
		return badRequest("same-origin credentials mode without initiator")
	}
	if req.Mode == cors.ModeNavigate && req.CredentialsMode != cors.CredentialsInclude {
		return badRequest("unsupported credentials mode on navigation")
	}

	if !f.cfg.Trust.IsTrusted {
		if req.ClientSecurityState != nil {
			return badRequest("client security state from untrusted caller")
		}
		if req.IsolatedWorldOrigin != nil {
			return badRequest("isolated world origin from untrusted caller")
		}
	}
	return nil
}

// validateMethod enforces the forbidden method set. CONNECT never passes;
// TRACE and TRACK pass only under no-cors. Anything that is not a valid
// token (embedded whitespace, CRLF injection) is rejected before the set
// is even consulted.
func validateMethod(method string, mode cors.RequestMode) *badRequestError {
	if !cors.IsValidToken(method) {
		return badRequest("invalid characters in method")
	}
	if cors.IsForbiddenMethod(method) {
		upper := strings.ToUpper(method)
		if upper == http.MethodConnect {
			return badRequest("forbidden method CONNECT")
		}
		if mode != cors.ModeNoCors {
			return badRequest(fmt.Sprintf("forbidden method %s outside no-cors", upper))
		}
	}
	return nil
}

// forbiddenHeaderIn returns the first header that must never appear in
// the caller-controlled bag, either because its name is forbidden or
// because a value embeds control bytes.
func forbiddenHeaderIn(headers http.Header) string {
	for name, values := range headers {
		if cors.IsForbiddenRequestHeader(name) {
			return name
		}
		for _, value := range values {
			if !cors.IsValidHeaderValue(value) {
				return name
			}
		}
	}
	return ""
}

// effectiveSecurityState applies the factory-wins precedence between the
// factory-level and request-level client security state.
func (f *Factory) effectiveSecurityState(req *network.Request) *cors.ClientSecurityState {
	if f.cfg.ClientSecurityState != nil {
		return f.cfg.ClientSecurityState
	}
	return req.ClientSecurityState
}

// accessListOrigin picks the origin used for origin access list lookups:
// the isolated world origin when factory trust permits it, otherwise the
// request initiator.
func (f *Factory) accessListOrigin(req *network.Request) *cors.Origin {
	if f.cfg.Trust.IsTrusted && req.IsolatedWorldOrigin != nil {
		return req.IsolatedWorldOrigin
	}
	return req.RequestInitiator
}
