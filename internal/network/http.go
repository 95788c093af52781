// SPDX-License-Identifier: MIT

package network

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
	xglog "github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
)

// HTTPFactoryConfig tunes the shared transport behind all HTTP loaders.
type HTTPFactoryConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int64

	// DisablePrivateNetworkChecks turns off target address space
	// enforcement, for tests and fully trusted deployments.
	DisablePrivateNetworkChecks bool
}

// DefaultHTTPFactoryConfig returns the production defaults.
func DefaultHTTPFactoryConfig() HTTPFactoryConfig {
	return HTTPFactoryConfig{
		Timeout:      30 * time.Second,
		MaxBodyBytes: 32 << 20,
	}
}

type dialRecord struct {
	mu    sync.Mutex
	space cors.IPAddressSpace
}

func (d *dialRecord) set(space cors.IPAddressSpace) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.space = space
}

func (d *dialRecord) get() cors.IPAddressSpace {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.space == "" {
		return cors.AddressSpaceUnknown
	}
	return d.space
}

type dialRecordKey struct{}

// HTTPFactory creates loaders sharing one instrumented http.Client. The
// client never follows redirects on its own; the CORS layer owns redirect
// semantics.
type HTTPFactory struct {
	cfg    HTTPFactoryConfig
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPFactory builds the factory with an otel-instrumented transport
// that records the address space of every dialed peer.
func NewHTTPFactory(cfg HTTPFactoryConfig) *HTTPFactory {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHTTPFactoryConfig().Timeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultHTTPFactoryConfig().MaxBodyBytes
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	base := &http.Transport{
		DialContext: func(ctx context.Context, netw, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, netw, addr)
			if err != nil {
				return nil, err
			}
			if rec, ok := ctx.Value(dialRecordKey{}).(*dialRecord); ok {
				rec.set(AddressSpaceOfHostPort(conn.RemoteAddr().String()))
			}
			return conn, nil
		},
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPFactory{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(base),
			Timeout:   cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: xglog.WithComponent("network"),
	}
}

// CreateLoader implements Factory.
func (f *HTTPFactory) CreateLoader() Loader {
	return &httpLoader{
		client: f.client,
		cfg:    f.cfg,
		logger: f.logger,
	}
}

type loaderState int

const (
	loaderIdle loaderState = iota
	loaderInFlight
	loaderWaitingFollow
	loaderDone
)

type httpLoader struct {
	client *http.Client
	cfg    HTTPFactoryConfig
	logger zerolog.Logger

	mu       sync.Mutex
	state    loaderState
	delegate Delegate
	ctx      context.Context
	cancel   context.CancelFunc
	canceled bool
}

func (l *httpLoader) Start(ctx context.Context, req *Request, delegate Delegate) {
	l.mu.Lock()
	if l.state != loaderIdle {
		l.mu.Unlock()
		return
	}
	l.state = loaderInFlight
	l.delegate = delegate
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	go l.doLeg(req)
}

func (l *httpLoader) FollowRedirect(req *Request) {
	l.mu.Lock()
	if l.state != loaderWaitingFollow {
		l.mu.Unlock()
		return
	}
	l.state = loaderInFlight
	l.mu.Unlock()

	go l.doLeg(req)
}

func (l *httpLoader) Cancel() {
	l.mu.Lock()
	l.canceled = true
	l.state = loaderDone
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// delivery helpers: each checks the canceled flag so no delegate call
// escapes after Cancel.

func (l *httpLoader) deliverRedirect(info RedirectInfo, head *ResponseHead) {
	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		return
	}
	l.state = loaderWaitingFollow
	delegate := l.delegate
	l.mu.Unlock()
	delegate.OnReceivedRedirect(info, head)
}

func (l *httpLoader) deliverResponse(head *ResponseHead) {
	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		return
	}
	delegate := l.delegate
	l.mu.Unlock()
	delegate.OnReceivedResponse(head)
}

func (l *httpLoader) deliverComplete(status Status) {
	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		return
	}
	l.state = loaderDone
	delegate := l.delegate
	l.mu.Unlock()
	delegate.OnComplete(status)
}

func (l *httpLoader) doLeg(req *Request) {
	rec := &dialRecord{}
	ctx := context.WithValue(l.ctx, dialRecordKey{}, rec)

	httpReq, err := l.buildRequest(ctx, req)
	if err != nil {
		l.deliverComplete(Status{Error: ErrInvalidArgument})
		return
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			l.deliverComplete(Status{Error: ErrAborted})
			return
		}
		l.logger.Debug().Err(err).Str("url", req.URL.String()).Msg("transport leg failed")
		l.deliverComplete(Status{Error: ErrConnectionFailed})
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	observed := rec.get()
	if status, blocked := l.privateNetworkGate(req, observed); blocked {
		l.abandonBody(resp, status)
		return
	}

	if info, ok := redirectInfoOf(req, resp); ok {
		head := &ResponseHead{
			StatusCode:         resp.StatusCode,
			Headers:            resp.Header.Clone(),
			TargetAddressSpace: observed,
		}
		// Drain so the connection can be reused for the next hop.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		l.deliverRedirect(info, head)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.cfg.MaxBodyBytes))
	if err != nil {
		l.deliverComplete(Status{Error: ErrConnectionFailed})
		return
	}
	l.deliverResponse(&ResponseHead{
		StatusCode:         resp.StatusCode,
		Headers:            resp.Header.Clone(),
		Body:               body,
		TargetAddressSpace: observed,
	})
	l.deliverComplete(Status{Error: OK})
}

func (l *httpLoader) abandonBody(resp *http.Response, status Status) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	l.deliverComplete(status)
}

// privateNetworkGate blocks a leg that unexpectedly reached a more-private
// address space than the request was prepared for. A request that already
// carries the matching TargetAddressSpace (set after a PNA preflight)
// passes through.
func (l *httpLoader) privateNetworkGate(req *Request, observed cors.IPAddressSpace) (Status, bool) {
	if l.cfg.DisablePrivateNetworkChecks || req.ClientSecurityState == nil {
		return Status{}, false
	}
	client := req.ClientSecurityState.ClientAddressSpace
	if !observed.IsLessPublic(client) {
		return Status{}, false
	}
	if req.TargetAddressSpace == observed {
		return Status{}, false
	}
	if req.ClientSecurityState.Policy() == cors.PrivateNetworkAllow {
		return Status{}, false
	}
	return Status{
		Error: ErrBlockedByPrivateNetworkAccessChecks,
		CorsError: &cors.ErrorStatus{
			Kind:               cors.ErrUnexpectedPrivateNetworkAccess,
			TargetAddressSpace: observed,
		},
	}, true
}

func (l *httpLoader) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	for name, values := range req.Headers {
		httpReq.Header[name] = append([]string(nil), values...)
	}
	for name, values := range req.CorsExemptHeaders {
		httpReq.Header[name] = append([]string(nil), values...)
	}
	if req.CredentialsMode == cors.CredentialsOmit {
		httpReq.Header.Del("Authorization")
		httpReq.Header.Del("Cookie")
	}
	return httpReq, nil
}

func redirectInfoOf(req *Request, resp *http.Response) (RedirectInfo, bool) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return RedirectInfo{}, false
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return RedirectInfo{}, false
	}
	newURL, err := req.URL.Parse(location)
	if err != nil {
		return RedirectInfo{}, false
	}
	return RedirectInfo{
		StatusCode:        resp.StatusCode,
		NewURL:            newURL,
		NewMethod:         RedirectMethod(resp.StatusCode, req.Method),
		NewReferrer:       referrerFor(req.URL, newURL),
		NewSiteForCookies: cors.OriginFromURL(newURL).Serialize(),
	}, true
}

// referrerFor downgrades the referrer to origin-only when the redirect
// crosses an origin boundary.
func referrerFor(from, to *url.URL) string {
	stripped := *from
	stripped.User = nil
	stripped.Fragment = ""
	if cors.OriginFromURL(from).IsSameOriginWith(cors.OriginFromURL(to)) {
		return stripped.String()
	}
	return cors.OriginFromURL(from).Serialize() + "/"
}
