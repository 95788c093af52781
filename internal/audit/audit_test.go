// SPDX-License-Identifier: MIT

package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "audit.db"), DefaultStoreConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRecordAndQuery(t *testing.T) {
	store := openTestStore(t)

	logger := NewLogger(store)
	logger.Record(Event{
		Type:      EventCorsRejected,
		Initiator: "https://example.com",
		URL:       "https://other.example.com/data",
		ErrorKind: "missing_allow_origin_header",
		RequestID: "req-1",
	})
	logger.Record(Event{
		Type:   EventAccessListReload,
		Detail: "3 entries",
	})

	// The write path is asynchronous.
	assert.Eventually(t, func() bool {
		events, err := store.Query("", 10)
		return err == nil && len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)

	events, err := store.Query(EventCorsRejected, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "https://example.com", events[0].Initiator)
	assert.Equal(t, "missing_allow_origin_header", events[0].ErrorKind)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestStoreQueryNewestFirst(t *testing.T) {
	store := openTestStore(t)

	for _, detail := range []string{"first", "second", "third"} {
		store.Record(Event{Type: EventBadMessage, Detail: detail, Timestamp: time.Now()})
	}

	assert.Eventually(t, func() bool {
		events, err := store.Query("", 10)
		return err == nil && len(events) == 3
	}, 2*time.Second, 10*time.Millisecond)

	events, err := store.Query("", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "third", events[0].Detail)
	assert.Equal(t, "second", events[1].Detail)
}
