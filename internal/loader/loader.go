// SPDX-License-Identifier: MIT

package loader

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors/originaccess"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors/preflight"
	xglog "github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/metrics"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/network"
)

// maxRedirects caps the length of a redirect chain; exceeding it is fatal
// regardless of any other state.
const maxRedirects = 20

type loaderState int

const (
	stateIdle loaderState = iota
	stateInFlight
	stateWaitingFollow
	stateDone
)

// FollowRedirectParams carries the caller-controlled adjustments applied
// when a surfaced redirect is followed.
type FollowRedirectParams struct {
	RemovedHeaders            []string
	ModifiedHeaders           http.Header
	ModifiedCorsExemptHeaders http.Header

	// NewURL overrides the redirect target. Only trusted callers may use
	// it; anyone else triggers a bad-message diagnostic.
	NewURL *url.URL
}

// CorsURLLoader drives one logical cross-origin-aware request end to end.
// It owns the tainting latches (cors flag, tainted origin, timing-allow),
// triggers preflights, intercepts every redirect hop for re-validation,
// validates the terminal response and relays exactly one completion to the
// caller. Instances are created by Factory.CreateLoaderAndStart and must
// not be reused.
type CorsURLLoader struct {
	factory  *Factory
	delegate network.Delegate
	logger   zerolog.Logger

	mu       sync.Mutex
	state    loaderState
	canceled bool
	ctx      context.Context
	cancel   context.CancelFunc

	// req is the current hop's request record, rewritten at each redirect.
	// Its header bag holds author-set headers only; headers the loader
	// attaches itself live in uaHeaders so they never count toward the
	// preflight decision.
	req       *network.Request
	uaHeaders http.Header

	// One-way latches; they only ever move false to true.
	corsFlag          bool
	taintedOrigin     bool
	timingAllowFailed bool

	// accessAllowed is re-evaluated per hop: an origin access allow entry
	// suppresses CORS enforcement for that hop's target.
	accessAllowed bool

	hops           int
	newLoaderCount int
	pnaRetried     bool

	secState *cors.ClientSecurityState

	netLoader    network.Loader
	pendingInfo  network.RedirectInfo
	pendingCross bool

	tainting cors.ResponseTainting
}

func newCorsURLLoader(f *Factory, req *network.Request, delegate network.Delegate) *CorsURLLoader {
	return &CorsURLLoader{
		factory:   f,
		delegate:  delegate,
		logger:    xglog.WithComponent("cors-loader"),
		req:       req.Clone(),
		uaHeaders: http.Header{},
		secState:  f.effectiveSecurityState(req),
		tainting:  cors.TaintingBasic,
	}
}

func (l *CorsURLLoader) start(ctx context.Context) {
	l.mu.Lock()
	l.state = stateInFlight
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.req.ClientSecurityState = l.secState

	initiator := l.req.RequestInitiator
	crossOrigin := initiator != nil && !initiator.CanAccessURL(l.req.URL)

	switch l.factory.cfg.OriginAccess.Get().Check(l.lookupOriginLocked(), l.req.URL) {
	case originaccess.DecisionBlock:
		l.mu.Unlock()
		l.deliverComplete(network.Status{Error: network.ErrFailed})
		return
	case originaccess.DecisionAllow:
		l.accessAllowed = true
	}

	if l.req.Mode == cors.ModeSameOrigin && crossOrigin {
		l.mu.Unlock()
		l.failWith(network.Status{
			Error:     network.ErrFailed,
			CorsError: &cors.ErrorStatus{Kind: cors.ErrDisallowedByMode},
		})
		return
	}

	if crossOrigin && !l.accessAllowed && l.req.Mode.IsCorsEnabled() {
		l.corsFlag = true
	}
	l.mu.Unlock()

	go l.runLeg(false)
}

// lookupOriginLocked resolves the origin used for access list checks.
func (l *CorsURLLoader) lookupOriginLocked() cors.Origin {
	if o := l.factory.accessListOrigin(l.req); o != nil {
		return *o
	}
	return cors.Origin{Opaque: true}
}

// effectiveOrigin is the origin serialized into Origin headers and checked
// against Access-Control-Allow-Origin. A tainted chain serializes to
// "null".
func (l *CorsURLLoader) effectiveOrigin() cors.Origin {
	if l.taintedOrigin || l.req.RequestInitiator == nil {
		return cors.Origin{Opaque: true}
	}
	return *l.req.RequestInitiator
}

// runLeg executes one request leg: an optional preflight followed by the
// actual network request. followExisting reuses the paused in-flight
// loader for a same-origin hop; otherwise a fresh loader is created.
func (l *CorsURLLoader) runLeg(followExisting bool) {
	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		return
	}
	req := l.req
	corsFlag := l.corsFlag
	origin := l.effectiveOrigin()
	ctx := l.ctx
	l.mu.Unlock()

	pnaAttempt := req.TargetAddressSpace.IsKnown()
	if pnaAttempt || (corsFlag && preflight.NeedsPreflight(req)) {
		if l.factory.cfg.Preflight == nil {
			l.failWith(network.Status{Error: network.ErrFailed})
			return
		}
		status, _ := l.factory.cfg.Preflight.PerformCheck(ctx, preflight.CheckArgs{
			Request:        req,
			Origin:         origin,
			PrivateNetwork: pnaAttempt,
		})
		if !status.IsSuccess() {
			if l.forgivePreflightFailure(status) {
				l.emitCorsError(*status.CorsError, true)
			} else {
				l.failWith(status)
				return
			}
		}
	}

	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		return
	}
	hopReq := l.hopRequestLocked()

	if followExisting {
		netLoader := l.netLoader
		l.mu.Unlock()
		netLoader.FollowRedirect(hopReq)
		return
	}

	if l.netLoader != nil {
		l.netLoader.Cancel()
	}
	l.netLoader = l.factory.cfg.Network.CreateLoader()
	l.newLoaderCount++
	netLoader := l.netLoader
	l.mu.Unlock()

	netLoader.Start(ctx, hopReq, &netDelegate{l})
}

// forgivePreflightFailure applies the policy gate: warn-only policies
// suppress exactly the narrow allow-private-network header checks; every
// other preflight failure stays fatal.
func (l *CorsURLLoader) forgivePreflightFailure(status network.Status) bool {
	if status.CorsError == nil || !status.CorsError.Kind.IsPrivateNetworkSpecific() {
		return false
	}
	return l.secState.Policy().IsWarningOnly()
}

// hopRequestLocked builds the request handed to the transport for the
// current hop. Origin and Referer are attached here, layered over the
// author headers without touching them.
func (l *CorsURLLoader) hopRequestLocked() *network.Request {
	initiator := l.req.RequestInitiator
	crossOrigin := initiator != nil && !initiator.CanAccessURL(l.req.URL)
	if l.corsFlag || (crossOrigin && l.accessAllowed) || l.taintedOrigin {
		l.uaHeaders.Set(cors.HeaderOrigin, l.effectiveOrigin().Serialize())
	}
	hop := l.req.Clone()
	for name, values := range l.uaHeaders {
		hop.Headers[name] = append([]string(nil), values...)
	}
	return hop
}

// netDelegate receives transport callbacks; a separate type keeps the
// loader's caller-facing surface free of them.
type netDelegate struct{ l *CorsURLLoader }

func (d *netDelegate) OnReceivedRedirect(info network.RedirectInfo, head *network.ResponseHead) {
	d.l.onNetRedirect(info, head)
}
func (d *netDelegate) OnReceivedResponse(head *network.ResponseHead) { d.l.onNetResponse(head) }
func (d *netDelegate) OnComplete(status network.Status)              { d.l.onNetComplete(status) }

func (l *CorsURLLoader) onNetRedirect(info network.RedirectInfo, head *network.ResponseHead) {
	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		return
	}

	l.hops++
	if l.hops > maxRedirects {
		l.mu.Unlock()
		l.failWith(network.Status{Error: network.ErrTooManyRedirects})
		return
	}
	if l.req.RedirectMode == cors.RedirectError {
		l.mu.Unlock()
		l.failWith(network.Status{Error: network.ErrFailed})
		return
	}

	if status := cors.CheckRedirectLocation(cors.RedirectCheck{
		NewURL:        info.NewURL,
		Mode:          l.req.Mode,
		Initiator:     l.req.RequestInitiator,
		CorsFlag:      l.corsFlag,
		TaintedOrigin: l.taintedOrigin,
		ExemptSchemes: l.factory.cfg.ExemptSchemes,
	}); status != nil {
		l.mu.Unlock()
		l.failWith(network.Status{Error: network.ErrFailed, CorsError: status})
		return
	}

	// A CORS-flagged chain verifies every hop, including the redirect
	// response itself.
	if l.corsFlag && !l.accessAllowed {
		if status := cors.CheckAccess(head.Headers, l.req.CredentialsMode, l.effectiveOrigin()); status != nil {
			l.mu.Unlock()
			l.failWith(network.Status{Error: network.ErrFailed, CorsError: status})
			return
		}
	}

	l.noteTimingAllowLocked(head.Headers)

	initiator := l.req.RequestInitiator
	crossing := !cors.OriginFromURL(info.NewURL).IsSameOriginWith(cors.OriginFromURL(l.req.URL))

	if initiator != nil && !initiator.CanAccessURL(info.NewURL) {
		l.accessAllowed = l.factory.cfg.OriginAccess.Get().
			Check(l.lookupOriginLocked(), info.NewURL) == originaccess.DecisionAllow
		if !l.accessAllowed && l.req.Mode.IsCorsEnabled() {
			l.corsFlag = true
		}
		// The origin taints once the chain leaves both the initiator's
		// origin and the current hop's origin behind.
		if !initiator.CanAccessURL(l.req.URL) {
			l.taintedOrigin = true
		}
	}

	metrics.RecordRedirect(crossing)

	l.pendingInfo = info
	l.pendingCross = crossing
	l.state = stateWaitingFollow
	delegate := l.delegate
	l.mu.Unlock()

	delegate.OnReceivedRedirect(info, head)
}

// FollowRedirect resumes a loader paused on a surfaced redirect, applying
// the caller's header adjustments to the next hop. Calling it in any other
// state is a protocol violation reported as a bad message.
func (l *CorsURLLoader) FollowRedirect(params FollowRedirectParams) {
	l.mu.Lock()
	if l.state != stateWaitingFollow {
		done := l.state == stateDone
		l.mu.Unlock()
		l.factory.cfg.Observer.OnBadMessage(l.factory.cfg.Trust.ProcessID,
			"FollowRedirect called in unexpected state")
		if !done {
			l.failWith(network.Status{Error: network.ErrInvalidArgument})
		}
		return
	}

	if l.req.RedirectMode == cors.RedirectManual && l.req.Mode == cors.ModeNavigate &&
		!l.factory.cfg.Trust.IsTrusted {
		l.mu.Unlock()
		l.factory.cfg.Observer.OnBadMessage(l.factory.cfg.Trust.ProcessID,
			"manual navigation redirect followed by untrusted caller")
		l.failWith(network.Status{Error: network.ErrInvalidArgument})
		return
	}
	if params.NewURL != nil && !l.factory.cfg.Trust.IsTrusted {
		l.mu.Unlock()
		l.factory.cfg.Observer.OnBadMessage(l.factory.cfg.Trust.ProcessID,
			"redirect url override from untrusted caller")
		l.failWith(network.Status{Error: network.ErrInvalidArgument})
		return
	}
	if name := forbiddenHeaderIn(params.ModifiedHeaders); name != "" {
		l.mu.Unlock()
		l.factory.cfg.Observer.OnBadMessage(l.factory.cfg.Trust.ProcessID,
			"forbidden header injected at redirect: "+name)
		l.failWith(network.Status{Error: network.ErrInvalidArgument})
		return
	}

	l.rewriteForNextHopLocked(params)
	follow := !l.pendingCross
	l.state = stateInFlight
	l.mu.Unlock()

	go l.runLeg(follow)
}

// rewriteForNextHopLocked turns the current request record into the next
// hop's request, applying redirect semantics and the caller's header
// adjustments.
func (l *CorsURLLoader) rewriteForNextHopLocked(params FollowRedirectParams) {
	info := l.pendingInfo

	for _, name := range params.RemovedHeaders {
		l.req.Headers.Del(name)
		l.req.CorsExemptHeaders.Del(name)
		l.uaHeaders.Del(name)
	}
	for name, values := range params.ModifiedHeaders {
		l.req.Headers[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	for name, values := range params.ModifiedCorsExemptHeaders {
		if l.req.CorsExemptHeaders == nil {
			l.req.CorsExemptHeaders = http.Header{}
		}
		l.req.CorsExemptHeaders[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}

	newURL := info.NewURL
	if params.NewURL != nil {
		newURL = params.NewURL
	}

	if info.NewMethod != l.req.Method {
		// The method rewrite drops the body and its describing headers.
		l.req.Method = info.NewMethod
		l.req.Body = nil
		for _, name := range []string{"Content-Length", "Content-Type", "Content-Encoding", "Content-Language", "Content-Location"} {
			l.req.Headers.Del(name)
		}
	}

	if l.pendingCross {
		// Ambient credentials never survive an origin change; the exempt
		// bag survives by factory policy.
		l.req.Headers.Del("Authorization")
		l.req.Headers.Del("Cookie")
	}

	if info.NewReferrer != "" {
		l.uaHeaders.Set("Referer", info.NewReferrer)
	}
	if l.req.UpdateFirstPartyURLOnRedirect && info.NewSiteForCookies != "" {
		l.req.SiteForCookies = info.NewSiteForCookies
	}
	l.req.URL = newURL
}

func (l *CorsURLLoader) onNetResponse(head *network.ResponseHead) {
	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		return
	}

	// Conditional revalidation and 304 must agree; a mismatch in either
	// direction is a protocol error, and a matching pair bypasses the
	// CORS header requirements entirely.
	revalidating := l.req.IsRevalidating
	notModified := head.StatusCode == http.StatusNotModified
	if revalidating != notModified {
		l.mu.Unlock()
		l.failWith(network.Status{Error: network.ErrFailed})
		return
	}

	if l.corsFlag && !l.accessAllowed && !revalidating {
		if status := cors.CheckAccess(head.Headers, l.req.CredentialsMode, l.effectiveOrigin()); status != nil {
			l.mu.Unlock()
			l.failWith(network.Status{Error: network.ErrFailed, CorsError: status})
			return
		}
	}

	l.noteTimingAllowLocked(head.Headers)

	l.tainting = cors.CalculateResponseTainting(cors.TaintingInput{
		URL:           l.req.URL,
		Mode:          l.req.Mode,
		Initiator:     l.req.RequestInitiator,
		CorsFlag:      l.corsFlag,
		TaintedOrigin: l.taintedOrigin,
		AccessAllowed: l.accessAllowed,
	})
	head.ResponseTainting = l.tainting
	head.TimingAllowPassed = !l.timingAllowFailed
	if l.tainting == cors.TaintingCors {
		head.ExposedHeaderNames = cors.ParseExposedHeaders(head.Headers, l.req.CredentialsMode)
	}
	delegate := l.delegate
	l.mu.Unlock()

	delegate.OnReceivedResponse(head)
}

// noteTimingAllowLocked latches the timing-allow state for one hop. A
// same-origin hop passes without the header; once a cross-origin hop
// fails the check the chain stays failed.
func (l *CorsURLLoader) noteTimingAllowLocked(headers http.Header) {
	if l.timingAllowFailed {
		return
	}
	initiator := l.req.RequestInitiator
	if !l.taintedOrigin && initiator != nil && initiator.CanAccessURL(l.req.URL) {
		return
	}
	requester := cors.Origin{Opaque: true}
	if initiator != nil {
		requester = *initiator
	}
	if !cors.PassesTimingAllowOrigin(headers, requester) {
		l.timingAllowFailed = true
	}
}

func (l *CorsURLLoader) onNetComplete(status network.Status) {
	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		return
	}

	// The transport surfaced an unexpectedly private target. Retry once
	// with a private network preflight scoped to the observed space.
	if status.Error == network.ErrBlockedByPrivateNetworkAccessChecks &&
		status.CorsError != nil && !l.pnaRetried && l.secState.Policy().RequiresPreflight() {
		l.pnaRetried = true
		l.req.TargetAddressSpace = status.CorsError.TargetAddressSpace
		l.logger.Debug().
			Str(xglog.FieldURL, l.req.URL.String()).
			Str(xglog.FieldAddressSpace, string(l.req.TargetAddressSpace)).
			Msg("retrying with private network preflight")
		l.mu.Unlock()
		go l.runLeg(false)
		return
	}
	l.mu.Unlock()

	if status.CorsError != nil {
		l.failWith(status)
		return
	}
	l.deliverComplete(status)
}

// Cancel aborts the request. In-flight legs are torn down and no further
// callbacks reach the caller; an aborted preflight never finalizes a cache
// write.
func (l *CorsURLLoader) Cancel() {
	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		return
	}
	l.canceled = true
	l.state = stateDone
	cancel := l.cancel
	netLoader := l.netLoader
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if netLoader != nil {
		netLoader.Cancel()
	}
}

// failWith reports a terminal failure, emitting the CORS diagnostic when
// one is attached.
func (l *CorsURLLoader) failWith(status network.Status) {
	if status.CorsError != nil {
		l.emitCorsError(*status.CorsError, false)
	}
	l.deliverComplete(status)
}

func (l *CorsURLLoader) emitCorsError(status cors.ErrorStatus, isWarning bool) {
	l.mu.Lock()
	initiator := l.req.RequestInitiator
	u := l.req.URL
	secState := l.secState
	devtools := l.req.DevToolsRequestID
	l.mu.Unlock()
	l.factory.cfg.Observer.OnCorsError(initiator, u, status, isWarning, secState, devtools)
}

// deliverComplete relays the single terminal outcome, exactly once.
func (l *CorsURLLoader) deliverComplete(status network.Status) {
	l.mu.Lock()
	if l.canceled || l.state == stateDone {
		l.mu.Unlock()
		return
	}
	l.state = stateDone
	delegate := l.delegate
	netLoader := l.netLoader
	mode := string(l.req.Mode)
	tainting := string(l.tainting)
	l.mu.Unlock()

	outcome := "success"
	switch {
	case status.CorsError != nil:
		outcome = "cors_error"
	case !status.IsSuccess():
		outcome = "network_error"
	}
	metrics.RecordRequest(mode, outcome, tainting)

	if netLoader != nil && !status.IsSuccess() {
		netLoader.Cancel()
	}
	delegate.OnComplete(status)
}

// NewLoaderCount reports how many transport loaders this request has
// consumed; same-origin hops reuse one, each cross-origin hop costs one.
func (l *CorsURLLoader) NewLoaderCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newLoaderCount
}
