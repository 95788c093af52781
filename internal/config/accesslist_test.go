// SPDX-License-Identifier: MIT
package config

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors/originaccess"
)

const sampleAccessList = `
entries:
  - source_origin: https://example.com
    protocol: https
    domain: api.internal
    match_subdomains: true
    priority: medium
  - source_origin: https://example.com
    domain: blocked.internal
    priority: high
    block: true
`

func writeAccessList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accesslist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestLoadAccessList(t *testing.T) {
	path := writeAccessList(t, sampleAccessList)

	doc, list, err := LoadAccessList(path)
	require.NoError(t, err)
	assert.Len(t, doc.Entries, 2)

	source, err := cors.ParseOrigin("https://example.com")
	require.NoError(t, err)

	assert.Equal(t, originaccess.DecisionAllow, list.Check(source, mustURL(t, "https://sub.api.internal/v1")))
	assert.Equal(t, originaccess.DecisionBlock, list.Check(source, mustURL(t, "https://blocked.internal/")))
	assert.Equal(t, originaccess.DecisionDefault, list.Check(source, mustURL(t, "https://elsewhere.com/")))
}

func TestLoadAccessListErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "not yaml",
			content: "{{{",
			wantErr: "parse access list",
		},
		{
			name: "bad source origin",
			content: `
entries:
  - source_origin: "not a url"
    domain: api.internal
`,
			wantErr: "source origin",
		},
		{
			name: "bad priority",
			content: `
entries:
  - source_origin: https://example.com
    domain: api.internal
    priority: urgent
`,
			wantErr: "unknown priority",
		},
		{
			name: "public suffix subdomain pattern",
			content: `
entries:
  - source_origin: https://example.com
    domain: com
    match_subdomains: true
`,
			wantErr: "public suffix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeAccessList(t, tt.content)
			_, _, err := LoadAccessList(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAccessListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accesslist.yaml")
	doc := AccessListDocument{Entries: []AccessListEntry{
		{SourceOrigin: "https://example.com", Domain: "api.internal", Priority: "high"},
	}}

	require.NoError(t, SaveAccessList(path, doc))

	loaded, _, err := LoadAccessList(path)
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestAccessListHolderUpdate(t *testing.T) {
	path := writeAccessList(t, "entries: []\n")
	h, err := NewAccessListHolder(path, nil)
	require.NoError(t, err)

	source, err := cors.ParseOrigin("https://example.com")
	require.NoError(t, err)
	target := mustURL(t, "https://api.internal/v1")

	assert.Equal(t, originaccess.DecisionDefault, h.Holder().Get().Check(source, target))

	err = h.Update(AccessListDocument{Entries: []AccessListEntry{
		{SourceOrigin: "https://example.com", Domain: "api.internal"},
	}})
	require.NoError(t, err)
	assert.Equal(t, originaccess.DecisionAllow, h.Holder().Get().Check(source, target))

	// An invalid update must leave the published snapshot untouched.
	err = h.Update(AccessListDocument{Entries: []AccessListEntry{
		{SourceOrigin: "https://example.com", Domain: ""},
	}})
	require.Error(t, err)
	assert.Equal(t, originaccess.DecisionAllow, h.Holder().Get().Check(source, target))

	// The update was persisted for the next startup.
	doc, _, err := LoadAccessList(path)
	require.NoError(t, err)
	assert.Len(t, doc.Entries, 1)
}

func TestAccessListHolderReloadKeepsOldOnError(t *testing.T) {
	path := writeAccessList(t, sampleAccessList)
	h, err := NewAccessListHolder(path, nil)
	require.NoError(t, err)

	source, err := cors.ParseOrigin("https://example.com")
	require.NoError(t, err)
	target := mustURL(t, "https://api.internal/v1")
	assert.Equal(t, originaccess.DecisionAllow, h.Holder().Get().Check(source, target))

	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, originaccess.DecisionAllow, h.Holder().Get().Check(source, target))
}

func TestAccessListHolderWatcherReloads(t *testing.T) {
	path := writeAccessList(t, "entries: []\n")
	h, err := NewAccessListHolder(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	source, err := cors.ParseOrigin("https://example.com")
	require.NoError(t, err)
	target := mustURL(t, "https://api.internal/v1")

	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - source_origin: https://example.com
    domain: api.internal
`), 0o600))

	assert.Eventually(t, func() bool {
		return h.Holder().Get().Check(source, target) == originaccess.DecisionAllow
	}, 5*time.Second, 50*time.Millisecond, "watcher should pick up the new access list")
}
