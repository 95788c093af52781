// SPDX-License-Identifier: MIT

package loader

import (
	"net/url"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/audit"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
	xglog "github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/metrics"
)

// Observer receives fire-and-forget diagnostics from the pipeline. CORS
// failures and policy warnings arrive on OnCorsError; caller protocol
// violations (forbidden headers, calls in the wrong state) arrive on
// OnBadMessage, kept apart from ordinary network failures so a misbehaving
// caller can be flagged separately. Implementations must not block.
type Observer interface {
	OnCorsError(initiator *cors.Origin, u *url.URL, status cors.ErrorStatus, isWarning bool,
		state *cors.ClientSecurityState, devToolsRequestID string)
	OnBadMessage(processID int, reason string)
}

// LogObserver writes diagnostics to the structured log and the metrics
// registry. Warning events are rate limited so a chatty private-network
// deployment cannot flood the log.
type LogObserver struct {
	logger      zerolog.Logger
	warnLimiter *rate.Limiter
}

// NewLogObserver builds the default observer. warnsPerSecond bounds the
// warning log volume; zero picks a sane default.
func NewLogObserver(warnsPerSecond float64) *LogObserver {
	if warnsPerSecond <= 0 {
		warnsPerSecond = 1
	}
	return &LogObserver{
		logger:      xglog.WithComponent("cors"),
		warnLimiter: rate.NewLimiter(rate.Limit(warnsPerSecond), 10),
	}
}

func (o *LogObserver) OnCorsError(initiator *cors.Origin, u *url.URL, status cors.ErrorStatus,
	isWarning bool, state *cors.ClientSecurityState, devToolsRequestID string) {
	metrics.RecordCorsError(string(status.Kind), isWarning)
	if isWarning {
		if status.Kind.IsPrivateNetworkSpecific() {
			metrics.RecordPrivateNetworkWarning()
		}
		if !o.warnLimiter.Allow() {
			return
		}
	}

	event := o.logger.Warn()
	if isWarning {
		event = o.logger.Info()
	}
	if initiator != nil {
		event = event.Str(xglog.FieldInitiator, initiator.Serialize())
	}
	if u != nil {
		event = event.Str(xglog.FieldURL, u.String())
	}
	if state != nil {
		event = event.Str(xglog.FieldAddressSpace, string(state.ClientAddressSpace))
	}
	if devToolsRequestID != "" {
		event = event.Str(xglog.FieldDevToolsID, devToolsRequestID)
	}
	event.
		Str(xglog.FieldCorsError, string(status.Kind)).
		Bool(xglog.FieldIsWarning, isWarning).
		Msg("cors check failed")
}

func (o *LogObserver) OnBadMessage(processID int, reason string) {
	metrics.RecordBadMessage()
	o.logger.Error().
		Int("process_id", processID).
		Str("reason", reason).
		Msg("bad message from caller")
}

// AuditObserver records diagnostics as audit events on top of another
// observer.
type AuditObserver struct {
	next Observer
	sink audit.Sink
}

// NewAuditObserver chains sink behind next. next may be nil.
func NewAuditObserver(next Observer, sink audit.Sink) *AuditObserver {
	if next == nil {
		next = NopObserver{}
	}
	return &AuditObserver{next: next, sink: sink}
}

func (o *AuditObserver) OnCorsError(initiator *cors.Origin, u *url.URL, status cors.ErrorStatus,
	isWarning bool, state *cors.ClientSecurityState, devToolsRequestID string) {
	o.next.OnCorsError(initiator, u, status, isWarning, state, devToolsRequestID)

	event := audit.Event{
		Type:      audit.EventCorsRejected,
		ErrorKind: string(status.Kind),
		RequestID: devToolsRequestID,
	}
	if isWarning {
		event.Type = audit.EventCorsWarning
	}
	if initiator != nil {
		event.Initiator = initiator.Serialize()
	}
	if u != nil {
		event.URL = u.String()
	}
	o.sink.Record(event)
}

func (o *AuditObserver) OnBadMessage(processID int, reason string) {
	o.next.OnBadMessage(processID, reason)
	o.sink.Record(audit.Event{Type: audit.EventBadMessage, Detail: reason})
}

// NopObserver discards all diagnostics.
type NopObserver struct{}

func (NopObserver) OnCorsError(*cors.Origin, *url.URL, cors.ErrorStatus, bool,
	*cors.ClientSecurityState, string) {
}
func (NopObserver) OnBadMessage(int, string) {}
