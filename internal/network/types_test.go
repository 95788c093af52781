// SPDX-License-Identifier: MIT

package network

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

func TestRedirectMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		method string
		want   string
	}{
		{"303 rewrites POST to GET", 303, "POST", "GET"},
		{"303 rewrites PUT to GET", 303, "PUT", "GET"},
		{"303 keeps HEAD", 303, "HEAD", "HEAD"},
		{"301 rewrites POST to GET", 301, "POST", "GET"},
		{"301 keeps PUT", 301, "PUT", "PUT"},
		{"302 rewrites POST to GET", 302, "POST", "GET"},
		{"302 keeps DELETE", 302, "DELETE", "DELETE"},
		{"307 keeps POST", 307, "POST", "POST"},
		{"308 keeps POST", 308, "POST", "POST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RedirectMethod(tt.status, tt.method))
		})
	}
}

func TestStatusIsSuccess(t *testing.T) {
	t.Parallel()

	assert.True(t, Status{Error: OK}.IsSuccess())
	assert.False(t, Status{Error: ErrFailed}.IsSuccess())
	assert.False(t, Status{Error: ErrTooManyRedirects}.IsSuccess())
}

func TestRequestClone(t *testing.T) {
	t.Parallel()

	u, err := url.Parse("https://api.example.com/v1")
	require.NoError(t, err)
	headers := http.Header{}
	headers.Set("X-Token", "abc")
	exempt := http.Header{}
	exempt.Set("X-Internal", "1")

	orig := &Request{
		URL:               u,
		Method:            "PUT",
		Headers:           headers,
		CorsExemptHeaders: exempt,
		Mode:              cors.ModeCors,
	}

	clone := orig.Clone()
	clone.Headers.Set("X-Token", "changed")
	clone.CorsExemptHeaders.Del("X-Internal")

	assert.Equal(t, "abc", orig.Headers.Get("X-Token"))
	assert.Equal(t, "1", orig.CorsExemptHeaders.Get("X-Internal"))
	assert.Same(t, orig.URL, clone.URL)
}
