// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/audit"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors/originaccess"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
)

// AccessListHolder keeps the published origin access list snapshot in sync
// with its YAML file. A reload either fully validates and swaps the new
// snapshot or keeps the old one untouched.
type AccessListHolder struct {
	holder *originaccess.Holder
	path   string
	logger zerolog.Logger
	sink   audit.Sink

	mu      sync.Mutex
	doc     AccessListDocument
	watcher *fsnotify.Watcher
}

// NewAccessListHolder loads the initial snapshot from path. An empty path
// starts with an empty list and disables watching and persistence.
func NewAccessListHolder(path string, sink audit.Sink) (*AccessListHolder, error) {
	h := &AccessListHolder{
		holder: originaccess.NewHolder(nil),
		path:   path,
		logger: log.WithComponent("config"),
		sink:   sink,
	}
	if h.sink == nil {
		h.sink = audit.NopSink{}
	}
	if path == "" {
		return h, nil
	}
	doc, list, err := LoadAccessList(path)
	if err != nil {
		return nil, err
	}
	h.doc = doc
	h.holder.Swap(list)
	return h, nil
}

// Holder exposes the snapshot holder for the loader factory.
func (h *AccessListHolder) Holder() *originaccess.Holder { return h.holder }

// Document returns a copy of the currently published document.
func (h *AccessListHolder) Document() AccessListDocument {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc := AccessListDocument{Entries: make([]AccessListEntry, len(h.doc.Entries))}
	copy(doc.Entries, h.doc.Entries)
	return doc
}

// Update validates, publishes and persists a new document. Used by the
// admin API; the file write is atomic so the watcher reload that follows
// sees a complete document.
func (h *AccessListHolder) Update(doc AccessListDocument) error {
	list, err := BuildAccessList(doc)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.path != "" {
		if err := SaveAccessList(h.path, doc); err != nil {
			return err
		}
	}
	h.doc = doc
	h.holder.Swap(list)
	h.logger.Info().
		Str("event", "accesslist.updated").
		Int("entries", len(doc.Entries)).
		Msg("origin access list updated")
	h.sink.Record(audit.Event{
		Type:   audit.EventAccessListUpdate,
		Detail: fmt.Sprintf("%d entries", len(doc.Entries)),
	})
	return nil
}

// Reload re-reads the file and swaps the snapshot. On any failure the
// previous snapshot stays published.
func (h *AccessListHolder) Reload(_ context.Context) error {
	if h.path == "" {
		return nil
	}
	h.logger.Info().Str("event", "accesslist.reload_start").Msg("reloading origin access list")

	doc, list, err := LoadAccessList(h.path)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "accesslist.reload_failed").
			Msg("failed to load new origin access list, keeping previous snapshot")
		h.sink.Record(audit.Event{
			Type:   audit.EventAccessListReloadError,
			Detail: err.Error(),
		})
		return err
	}

	h.mu.Lock()
	h.doc = doc
	h.mu.Unlock()
	h.holder.Swap(list)

	h.logger.Info().
		Str("event", "accesslist.reload_success").
		Int("entries", len(doc.Entries)).
		Msg("origin access list reloaded")
	h.sink.Record(audit.Event{
		Type:   audit.EventAccessListReload,
		Detail: fmt.Sprintf("%d entries", len(doc.Entries)),
	})
	return nil
}

// StartWatcher watches the access list file and reloads on change. A
// no-op when no file is configured.
func (h *AccessListHolder) StartWatcher(ctx context.Context) error {
	if h.path == "" {
		h.logger.Info().
			Str("event", "accesslist.watcher_disabled").
			Msg("access list watcher disabled (no file configured)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(h.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch access list file: %w", err)
	}

	h.mu.Lock()
	h.watcher = watcher
	h.mu.Unlock()

	h.logger.Info().
		Str("event", "accesslist.watcher_started").
		Str("path", h.path).
		Msg("watching origin access list for changes")

	go h.watchLoop(ctx, watcher)
	return nil
}

func (h *AccessListHolder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	// Debounce so editors that write in several syscalls trigger one reload.
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "accesslist.watcher_stopped").Msg("access list watcher stopped")
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.logger.Debug().
					Str("event", "accesslist.file_changed").
					Str("op", event.Op.String()).
					Msg("access list file changed")
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().
							Err(err).
							Str("event", "accesslist.auto_reload_failed").
							Msg("automatic access list reload failed")
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str("event", "accesslist.watcher_error").
				Msg("access list watcher error")
		}
	}
}

// Stop closes the watcher if running.
func (h *AccessListHolder) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watcher != nil {
		_ = h.watcher.Close()
		h.watcher = nil
	}
}
