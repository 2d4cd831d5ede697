// Package telemetry publishes best-effort intake events (draft saved,
// listing submitted) to an embedding system. Sinks are advisory: they may
// fail or be absent, and must never block or abort the save path.
package telemetry

import (
	"context"
	"time"
)

// Event is one intake lifecycle notification.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	SellerID  string         `json:"sellerId,omitempty"`
	DraftID   string         `json:"draftId,omitempty"`
	At        time.Time      `json:"at"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Event types emitted by the service.
const (
	EventDraftSaved       = "draft.saved"
	EventDraftSaveFailed  = "draft.save_failed"
	EventListingSubmitted = "listing.submitted"
)

// Sink receives events. Implementations swallow their own failures.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// publishTimeout caps how long a best-effort publish may take.
const publishTimeout = 2 * time.Second

// Notify publishes e on a detached goroutine with a bounded deadline and a
// panic guard. Safe with a nil sink.
func Notify(sink Sink, e Event) {
	if sink == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	go func() {
		defer func() { _ = recover() }()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		sink.Publish(ctx, e)
	}()
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}
