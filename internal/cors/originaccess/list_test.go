// SPDX-License-Identifier: MIT

package originaccess

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

func source(t *testing.T, raw string) cors.Origin {
	t.Helper()
	o, err := cors.ParseOrigin(raw)
	require.NoError(t, err)
	return o
}

func target(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestList_Check(t *testing.T) {
	t.Parallel()

	src := source(t, "https://example.com")

	list, err := NewList([]Entry{
		{SourceOrigin: src, Pattern: Pattern{Protocol: "https", Domain: "allowed.test", MatchSubdomains: true, Priority: PriorityMedium}},
		{SourceOrigin: src, Pattern: Pattern{Protocol: "https", Domain: "blocked.allowed.test", Priority: PriorityMedium}, Block: true},
		{SourceOrigin: src, Pattern: Pattern{Domain: "exact.test", Port: 8443}},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		src  cors.Origin
		url  string
		want Decision
	}{
		{"allowed host", src, "https://allowed.test/x", DecisionAllow},
		{"allowed subdomain", src, "https://img.allowed.test/x", DecisionAllow},
		{"block beats allow at equal priority", src, "https://blocked.allowed.test/x", DecisionBlock},
		{"wrong scheme", src, "http://allowed.test/x", DecisionDefault},
		{"port-constrained entry, matching port", src, "https://exact.test:8443/x", DecisionAllow},
		{"port-constrained entry, wrong port", src, "https://exact.test/x", DecisionDefault},
		{"unknown source origin", source(t, "https://other.com"), "https://allowed.test/x", DecisionDefault},
		{"suffix must respect dot boundary", src, "https://evilallowed.test/x", DecisionDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, list.Check(tt.src, target(t, tt.url)))
		})
	}
}

func TestList_PriorityOrdering(t *testing.T) {
	t.Parallel()

	src := source(t, "https://example.com")

	// A high-priority allow entry overrides a lower-priority block.
	list, err := NewList([]Entry{
		{SourceOrigin: src, Pattern: Pattern{Domain: "mixed.test", Priority: PriorityHigh}},
		{SourceOrigin: src, Pattern: Pattern{Domain: "mixed.test", Priority: PriorityLow}, Block: true},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, list.Check(src, target(t, "https://mixed.test/")))

	// At equal priority the block entry wins.
	list, err = NewList([]Entry{
		{SourceOrigin: src, Pattern: Pattern{Domain: "mixed.test", Priority: PriorityHigh}},
		{SourceOrigin: src, Pattern: Pattern{Domain: "mixed.test", Priority: PriorityHigh}, Block: true},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, list.Check(src, target(t, "https://mixed.test/")))
}

func TestPattern_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Pattern{Domain: "example.com", MatchSubdomains: true}.Validate())
	assert.NoError(t, Pattern{Domain: "localhost", MatchSubdomains: true}.Validate())
	assert.Error(t, Pattern{Domain: ""}.Validate())
	assert.Error(t, Pattern{Domain: "example.com", Protocol: "ftp"}.Validate())
	assert.Error(t, Pattern{Domain: "com", MatchSubdomains: true}.Validate(), "public suffix pattern must be rejected")
	assert.Error(t, Pattern{Domain: "co.uk", MatchSubdomains: true}.Validate())
}

func TestHolder_Swap(t *testing.T) {
	t.Parallel()

	src := source(t, "https://example.com")
	h := NewHolder(nil)
	assert.Equal(t, DecisionDefault, h.Get().Check(src, target(t, "https://allowed.test/")))

	list, err := NewList([]Entry{
		{SourceOrigin: src, Pattern: Pattern{Domain: "allowed.test"}},
	})
	require.NoError(t, err)
	h.Swap(list)
	assert.Equal(t, DecisionAllow, h.Get().Check(src, target(t, "https://allowed.test/")))
}
