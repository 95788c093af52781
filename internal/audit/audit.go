// SPDX-License-Identifier: MIT

// Package audit records security-relevant pipeline decisions: CORS
// rejections, private network warnings, bad messages from callers and
// access list changes. Events go to the structured log and, when a store
// is attached, to a queryable SQLite table.
package audit

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
)

// EventType classifies an audit event.
type EventType string

const (
	// Pipeline decisions.
	EventCorsRejected       EventType = "cors.rejected"
	EventCorsWarning        EventType = "cors.warning"
	EventBadMessage         EventType = "cors.bad_message"
	EventOriginAccessDenied EventType = "origin_access.denied"

	// Configuration events.
	EventAccessListReload      EventType = "accesslist.reload"
	EventAccessListReloadError EventType = "accesslist.reload.error"
	EventAccessListUpdate      EventType = "accesslist.update"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Initiator is the requesting origin; URL the target.
	Initiator string `json:"initiator,omitempty"`
	URL       string `json:"url,omitempty"`

	// ErrorKind carries the structured CORS error for rejection events.
	ErrorKind string `json:"error_kind,omitempty"`

	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Sink accepts audit events. Implementations must not block the pipeline.
type Sink interface {
	Record(event Event)
}

// NopSink discards events. Useful when auditing is disabled.
type NopSink struct{}

func (NopSink) Record(Event) {}

// Logger writes audit events to the structured log and forwards them to
// an optional store.
type Logger struct {
	logger zerolog.Logger
	store  Sink
}

// NewLogger creates the audit logger. store may be nil.
func NewLogger(store Sink) *Logger {
	return &Logger{
		logger: log.WithComponent("audit").With().Str("log_type", "audit").Logger(),
		store:  store,
	}
}

// Record writes one event.
func (l *Logger) Record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type))
	if event.Initiator != "" {
		logEvent = logEvent.Str(log.FieldInitiator, event.Initiator)
	}
	if event.URL != "" {
		logEvent = logEvent.Str(log.FieldURL, event.URL)
	}
	if event.ErrorKind != "" {
		logEvent = logEvent.Str(log.FieldCorsError, event.ErrorKind)
	}
	if event.Detail != "" {
		logEvent = logEvent.Str("detail", event.Detail)
	}
	if event.RequestID != "" {
		logEvent = logEvent.Str(log.FieldRequestID, event.RequestID)
	}
	logEvent.Msg("audit event")

	if l.store != nil {
		l.store.Record(event)
	}
}
