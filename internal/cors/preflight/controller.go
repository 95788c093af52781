// SPDX-License-Identifier: MIT

package preflight

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
	xglog "github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/metrics"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/network"
)

// NeedsPreflight reports whether the request must be preceded by an
// OPTIONS check: forced by mode, required by a non-simple method or
// header, or demanded by a detected private network target.
func NeedsPreflight(req *network.Request) bool {
	if req.TargetAddressSpace.IsKnown() {
		return true
	}
	if req.Mode == cors.ModeCorsWithForcedPreflight {
		return true
	}
	if !req.Mode.IsCorsEnabled() {
		return false
	}
	if !cors.IsCorsSafelistedMethod(req.Method) {
		return true
	}
	return len(cors.CorsUnsafeRequestHeaderNames(req.Headers)) > 0
}

// Controller runs preflights and owns their result cache.
type Controller struct {
	cache   Cache
	factory network.Factory
	logger  zerolog.Logger
	now     func() time.Time
}

// NewController wires a controller to its cache and transport factory.
func NewController(cache Cache, factory network.Factory) *Controller {
	if cache == nil {
		cache = NewNoopCache()
	}
	return &Controller{
		cache:   cache,
		factory: factory,
		logger:  xglog.WithComponent("preflight"),
		now:     time.Now,
	}
}

// CheckArgs carries the per-attempt inputs of PerformCheck.
type CheckArgs struct {
	Request *network.Request

	// Origin is the effective request origin for this hop; an opaque
	// origin serializes to "null" on a tainted chain.
	Origin cors.Origin

	// PrivateNetwork marks a PNA attempt. Such attempts bypass the
	// ordinary cache in both directions.
	PrivateNetwork bool
}

// PerformCheck runs (or satisfies from cache) the preflight for args. The
// returned bool reports a cache hit. A failed check comes back as a
// failed network.Status carrying the structured CORS error; transport
// failures pass through unchanged.
func (c *Controller) PerformCheck(ctx context.Context, args CheckArgs) (network.Status, bool) {
	req := args.Request
	key := NewKey(args.Origin, req.URL, req.CredentialsMode, args.PrivateNetwork)

	if args.PrivateNetwork {
		// A fresh PNA attempt must not observe a stale PNA grant.
		c.cache.InvalidatePrivateNetwork(key)
	} else if result, ok := c.cache.Get(key); ok {
		if c.covers(result, req) {
			metrics.RecordPreflightCacheLookup(true)
			return network.Status{Error: network.OK}, true
		}
	}
	if !args.PrivateNetwork {
		metrics.RecordPreflightCacheLookup(false)
	}

	head, status := c.runLeg(ctx, args)
	if !status.IsSuccess() {
		outcome := "network_error"
		if status.CorsError != nil {
			outcome = "failure"
		}
		metrics.RecordPreflight(outcome, args.PrivateNetwork)
		return status, false
	}

	result, errStatus := c.validate(head, args)
	if errStatus != nil {
		if errStatus.TargetAddressSpace == "" {
			errStatus.TargetAddressSpace = req.TargetAddressSpace
		}
		metrics.RecordPreflight("failure", args.PrivateNetwork)
		return network.Status{Error: network.ErrFailed, CorsError: errStatus}, false
	}

	metrics.RecordPreflight("success", args.PrivateNetwork)
	if !args.PrivateNetwork {
		c.cache.Put(key, result)
	}
	return network.Status{Error: network.OK}, false
}

// covers reports whether a cached grant satisfies the request without a
// fresh preflight.
func (c *Controller) covers(result *Result, req *network.Request) bool {
	if result.Expired(c.now()) {
		return false
	}
	if !result.AllowsMethod(req.Method, req.CredentialsMode) {
		return false
	}
	unsafe := cors.CorsUnsafeRequestHeaderNames(req.Headers)
	return result.DisallowedHeader(unsafe, req.CredentialsMode) == ""
}

// runLeg issues the OPTIONS request and waits for its terminal status. A
// redirected preflight is a hard failure; redirects are never followed here.
func (c *Controller) runLeg(ctx context.Context, args CheckArgs) (*network.ResponseHead, network.Status) {
	req := args.Request

	pre := &network.Request{
		URL:                 req.URL,
		Method:              http.MethodOptions,
		Mode:                req.Mode,
		CredentialsMode:     cors.CredentialsOmit,
		RedirectMode:        cors.RedirectError,
		Headers:             http.Header{},
		RequestInitiator:    req.RequestInitiator,
		ClientSecurityState: req.ClientSecurityState,
		TargetAddressSpace:  req.TargetAddressSpace,
		DevToolsRequestID:   req.DevToolsRequestID,
	}
	pre.Headers.Set(cors.HeaderOrigin, args.Origin.Serialize())
	pre.Headers.Set(cors.HeaderRequestMethod, strings.ToUpper(req.Method))
	if unsafe := cors.CorsUnsafeRequestHeaderNames(req.Headers); len(unsafe) > 0 {
		pre.Headers.Set(cors.HeaderRequestHeaders, strings.Join(unsafe, ","))
	}
	if args.PrivateNetwork {
		pre.Headers.Set(cors.HeaderRequestPrivateNetwork, "true")
	}

	delegate := newSyncDelegate()
	loader := c.factory.CreateLoader()
	loader.Start(ctx, pre, delegate)

	select {
	case <-ctx.Done():
		loader.Cancel()
		return nil, network.Status{Error: network.ErrAborted}
	case <-delegate.done:
	}

	if delegate.redirected {
		loader.Cancel()
		return nil, network.Status{
			Error:     network.ErrFailed,
			CorsError: &cors.ErrorStatus{Kind: cors.ErrPreflightDisallowedRedirect},
		}
	}
	if !delegate.status.IsSuccess() {
		return nil, delegate.status
	}
	if delegate.head == nil {
		return nil, network.Status{
			Error:     network.ErrFailed,
			CorsError: &cors.ErrorStatus{Kind: cors.ErrInvalidResponse},
		}
	}
	return delegate.head, network.Status{Error: network.OK}
}

func (c *Controller) validate(head *network.ResponseHead, args CheckArgs) (*Result, *cors.ErrorStatus) {
	req := args.Request

	if head.StatusCode < 200 || head.StatusCode > 299 {
		return nil, cors.NewErrorStatus(cors.ErrPreflightInvalidStatus, strconv.Itoa(head.StatusCode))
	}
	if status := cors.CheckPreflightAccess(head.Headers, req.CredentialsMode, args.Origin); status != nil {
		return nil, status
	}

	result, errStatus := parseResult(head.Headers, c.now())
	if errStatus != nil {
		return nil, errStatus
	}
	if !result.AllowsMethod(req.Method, req.CredentialsMode) {
		return nil, cors.NewErrorStatus(cors.ErrMethodDisallowedByPreflightResponse, req.Method)
	}
	unsafe := cors.CorsUnsafeRequestHeaderNames(req.Headers)
	if name := result.DisallowedHeader(unsafe, req.CredentialsMode); name != "" {
		return nil, cors.NewErrorStatus(cors.ErrHeaderDisallowedByPreflightResponse, name)
	}

	if args.PrivateNetwork {
		if status := checkPrivateNetwork(head.Headers); status != nil {
			status.TargetAddressSpace = req.TargetAddressSpace
			return nil, status
		}
		result.PrivateNetwork = true
	}
	return result, nil
}

// syncDelegate bridges the asynchronous loader contract to the
// controller's sequential flow.
type syncDelegate struct {
	done       chan struct{}
	head       *network.ResponseHead
	status     network.Status
	redirected bool
}

func newSyncDelegate() *syncDelegate {
	return &syncDelegate{done: make(chan struct{})}
}

func (d *syncDelegate) OnReceivedRedirect(network.RedirectInfo, *network.ResponseHead) {
	d.redirected = true
	close(d.done)
}

func (d *syncDelegate) OnReceivedResponse(head *network.ResponseHead) {
	d.head = head
}

func (d *syncDelegate) OnComplete(status network.Status) {
	d.status = status
	close(d.done)
}
