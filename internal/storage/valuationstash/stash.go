// Package valuationstash holds the externally produced valuation payload
// for a session between the valuation step and final submission. Entries
// are session-scoped, carry a TTL, and are consumed exactly once.
package valuationstash

import (
	"context"
	"encoding/json"

	"github.com/karsell/intake/internal/models"
)

// Stash stores one valuation payload per session.
type Stash interface {
	// Put deposits the raw payload for a session, replacing any previous one.
	Put(ctx context.Context, sessionID string, raw json.RawMessage) error

	// Get returns the decoded payload, or shared.ErrorNoValuation when
	// none was deposited (or it expired).
	Get(ctx context.Context, sessionID string) (*models.ValuationPayload, error)

	// Clear removes the payload after it has been consumed.
	Clear(ctx context.Context, sessionID string) error
}
