// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/loader"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/network"
)

// FetchRequest is the gateway fetch envelope.
type FetchRequest struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`

	Headers           http.Header `json:"headers,omitempty"`
	CorsExemptHeaders http.Header `json:"cors_exempt_headers,omitempty"`

	Mode            string `json:"mode,omitempty"`
	CredentialsMode string `json:"credentials_mode,omitempty"`
	RedirectMode    string `json:"redirect_mode,omitempty"`

	Initiator string `json:"initiator,omitempty"`

	TargetAddressSpace string `json:"target_address_space,omitempty"`
	IsRevalidating     bool   `json:"is_revalidating,omitempty"`

	Body string `json:"body,omitempty"`
}

// FetchResponse reports one completed fetch, success or failure.
type FetchResponse struct {
	StatusCode int         `json:"status_code,omitempty"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       string      `json:"body,omitempty"`

	ResponseTainting  string   `json:"response_tainting,omitempty"`
	ExposedHeaders    []string `json:"exposed_headers,omitempty"`
	TimingAllowPassed bool     `json:"timing_allow_passed"`
	Redirects         int      `json:"redirects"`

	Error *FetchError `json:"error,omitempty"`
}

// FetchError carries the terminal failure of a fetch.
type FetchError struct {
	NetError  string            `json:"net_error"`
	CorsError *cors.ErrorStatus `json:"cors_error,omitempty"`
}

func (fr *FetchRequest) toNetworkRequest(requestID string) (*network.Request, error) {
	u, err := url.Parse(fr.URL)
	if err != nil {
		return nil, err
	}

	req := &network.Request{
		URL:               u,
		Method:            fr.Method,
		Headers:           fr.Headers,
		CorsExemptHeaders: fr.CorsExemptHeaders,
		Mode:              cors.RequestMode(fr.Mode),
		CredentialsMode:   cors.CredentialsMode(fr.CredentialsMode),
		RedirectMode:      cors.RedirectMode(fr.RedirectMode),
		IsRevalidating:    fr.IsRevalidating,
		DevToolsRequestID: requestID,
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	if req.CorsExemptHeaders == nil {
		req.CorsExemptHeaders = http.Header{}
	}
	if req.Mode == "" {
		req.Mode = cors.ModeCors
	}
	if req.CredentialsMode == "" {
		req.CredentialsMode = cors.CredentialsOmit
	}
	if req.RedirectMode == "" {
		req.RedirectMode = cors.RedirectFollow
	}
	if fr.TargetAddressSpace != "" {
		req.TargetAddressSpace = cors.IPAddressSpace(fr.TargetAddressSpace)
	}
	if fr.Body != "" {
		req.Body = []byte(fr.Body)
	}
	if fr.Initiator != "" {
		origin, err := cors.ParseOrigin(fr.Initiator)
		if err != nil {
			return nil, err
		}
		req.RequestInitiator = &origin
	}
	return req, nil
}

// gatewayDelegate funnels loader callbacks into channels so the handler
// can drive the redirect-follow loop synchronously.
type gatewayDelegate struct {
	redirects chan network.RedirectInfo
	complete  chan network.Status

	head *network.ResponseHead
}

func newGatewayDelegate() *gatewayDelegate {
	return &gatewayDelegate{
		// Sized above the loader redirect limit so delivery never blocks.
		redirects: make(chan network.RedirectInfo, 32),
		complete:  make(chan network.Status, 1),
	}
}

func (d *gatewayDelegate) OnReceivedRedirect(info network.RedirectInfo, _ *network.ResponseHead) {
	d.redirects <- info
}

func (d *gatewayDelegate) OnReceivedResponse(head *network.ResponseHead) { d.head = head }

func (d *gatewayDelegate) OnComplete(status network.Status) { d.complete <- status }

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var fetchReq FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&fetchReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if fetchReq.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	requestID := log.RequestIDFromContext(r.Context())
	netReq, err := fetchReq.toNetworkRequest(requestID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.FetchTimeout)
	defer cancel()

	delegate := newGatewayDelegate()
	ldr, err := s.cfg.Factory.CreateLoaderAndStart(ctx, netReq, delegate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	redirects := 0
	var status network.Status
loop:
	for {
		select {
		case <-delegate.redirects:
			// The gateway always follows; the loader enforces the hop
			// limit and per-hop checks.
			redirects++
			ldr.FollowRedirect(loader.FollowRedirectParams{})
		case status = <-delegate.complete:
			break loop
		case <-ctx.Done():
			ldr.Cancel()
			writeError(w, http.StatusGatewayTimeout, "fetch timed out")
			return
		}
	}

	resp := FetchResponse{Redirects: redirects}
	if head := delegate.head; head != nil {
		resp.StatusCode = head.StatusCode
		resp.Headers = head.Headers
		resp.Body = string(head.Body)
		resp.ResponseTainting = string(head.ResponseTainting)
		resp.ExposedHeaders = head.ExposedHeaderNames
		resp.TimingAllowPassed = head.TimingAllowPassed
	}
	if !status.IsSuccess() {
		resp.Error = &FetchError{
			NetError:  string(status.Error),
			CorsError: status.CorsError,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
