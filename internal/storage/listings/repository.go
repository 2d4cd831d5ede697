// Package listings persists draft and finalized listing rows. The draft
// engine upserts drafts here; the submission reconciler finalizes them.
package listings

import (
	"context"

	"github.com/karsell/intake/internal/models"
)

// Row is a schema-shaped listing record: every key must name a column of
// the listings table at write time. The reconciler filters rows against
// the live schema before handing them over.
type Row map[string]any

// Repository is the narrow CRUD surface of the listings table.
type Repository interface {
	// SaveDraft upserts the draft row for a snapshot and returns the
	// bound draft ID. At most one open draft exists per (seller, vin).
	SaveDraft(ctx context.Context, snap *models.FormSnapshot) (string, error)

	// GetDraft returns a seller's draft by ID, or shared.ErrorNotFound.
	GetDraft(ctx context.Context, sellerID, draftID string) (*models.Listing, error)

	// FindFinalizedByVIN returns the finalized listing for a VIN, or
	// shared.ErrorNotFound.
	FindFinalizedByVIN(ctx context.Context, vin string) (*models.Listing, error)

	// Finalize writes the listing row with is_draft=false: an insert when
	// draftID is empty, otherwise an update of the draft row. A
	// uniqueness violation surfaces as shared.ErrorDuplicateListing.
	Finalize(ctx context.Context, draftID string, row Row) (string, error)

	// Columns introspects the live column set of the listings table.
	// Absence of the introspection capability is a configuration error,
	// not a fatal one; callers fall back to a static allowlist.
	Columns(ctx context.Context) ([]string, error)
}
