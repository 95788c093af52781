// SPDX-License-Identifier: MIT
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

func postFetch(t *testing.T, srv *Server, req FetchRequest) (*httptest.ResponseRecorder, FetchResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/fetch", bytes.NewReader(body)))

	var resp FetchResponse
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return rr, resp
}

func TestFetchSameOrigin(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, serverOptions{})

	rr, resp := postFetch(t, srv, FetchRequest{
		URL:       backend.URL + "/data",
		Initiator: backend.URL,
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, resp.Error)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", resp.Body)
	assert.Equal(t, string(cors.TaintingBasic), resp.ResponseTainting)
}

func TestFetchCrossOriginWithAllowOrigin(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://example.com", r.Header.Get("Origin"))
		w.Header().Set("Access-Control-Allow-Origin", "https://example.com")
		w.Header().Set("Access-Control-Expose-Headers", "X-Trace")
		w.Header().Set("X-Trace", "abc")
		_, _ = w.Write([]byte("cross"))
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, serverOptions{})

	rr, resp := postFetch(t, srv, FetchRequest{
		URL:       backend.URL + "/data",
		Initiator: "https://example.com",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	require.Nil(t, resp.Error)
	assert.Equal(t, "cross", resp.Body)
	assert.Equal(t, string(cors.TaintingCors), resp.ResponseTainting)
	assert.Contains(t, resp.ExposedHeaders, "x-trace")
}

func TestFetchCrossOriginDenied(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, serverOptions{})

	rr, resp := postFetch(t, srv, FetchRequest{
		URL:       backend.URL + "/data",
		Initiator: "https://example.com",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, resp.Error)
	require.NotNil(t, resp.Error.CorsError)
	assert.Equal(t, cors.ErrMissingAllowOriginHeader, resp.Error.CorsError.Kind)
	assert.Empty(t, resp.Body, "denied response body must not leak")
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	backend := httptest.NewServer(mux)
	defer backend.Close()

	mux.HandleFunc("/from", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "https://example.com")
		http.Redirect(w, r, backend.URL+"/to", http.StatusFound)
	})
	mux.HandleFunc("/to", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "https://example.com")
		_, _ = w.Write([]byte("landed"))
	})

	srv, _ := newTestServer(t, serverOptions{})

	rr, resp := postFetch(t, srv, FetchRequest{
		URL:       backend.URL + "/from",
		Initiator: "https://example.com",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	require.Nil(t, resp.Error)
	assert.Equal(t, "landed", resp.Body)
	assert.Equal(t, 1, resp.Redirects)
}

func TestFetchPreflightedRequest(t *testing.T) {
	var mu sync.Mutex
	var methods []string

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()

		w.Header().Set("Access-Control-Allow-Origin", "https://example.com")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "PUT")
			w.Header().Set("Access-Control-Allow-Headers", "x-token")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte("stored"))
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, serverOptions{})

	rr, resp := postFetch(t, srv, FetchRequest{
		URL:       backend.URL + "/item",
		Method:    http.MethodPut,
		Headers:   http.Header{"X-Token": []string{"secret"}},
		Initiator: "https://example.com",
		Body:      "payload",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	require.Nil(t, resp.Error)
	assert.Equal(t, "stored", resp.Body)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{http.MethodOptions, http.MethodPut}, methods)
}

func TestFetchValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{})

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{{{"},
		{name: "missing url", body: `{"method":"GET"}`},
		{name: "bad initiator", body: `{"url":"https://example.com/","initiator":"not an origin"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/fetch", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestFetchAdmissionFailure(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{})

	// cors mode requires an initiator; the factory rejects this before any
	// network activity.
	rr, _ := postFetch(t, srv, FetchRequest{URL: "https://example.com/api"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "initiator")
}
