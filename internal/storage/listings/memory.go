package listings

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/shared"
)

// MemoryRepository is an in-memory Repository used by tests and local
// development. It mirrors the Postgres constraints: one open draft per
// (seller, vin), unique finalized VIN.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]*memRow

	// StaticColumns, when set, is returned by Columns. Leaving it nil
	// simulates a backend without the introspection capability.
	StaticColumns []string
}

type memRow struct {
	listing models.Listing
	row     Row
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: map[string]*memRow{}}
}

func (r *MemoryRepository) SaveDraft(_ context.Context, snap *models.FormSnapshot) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := snap.DraftID
	if id == "" {
		for existingID, m := range r.rows {
			if m.listing.IsDraft && m.listing.SellerID == snap.SellerID && m.listing.VIN == snap.VIN {
				id = existingID
				break
			}
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	r.rows[id] = &memRow{listing: models.Listing{
		ID:        id,
		SellerID:  snap.SellerID,
		VIN:       snap.VIN,
		Title:     models.ListingTitle(snap.Make, snap.Model, snap.Year),
		IsDraft:   true,
		Mileage:   snap.Mileage,
		Snapshot:  snap.Clone(),
		UpdatedAt: time.Now(),
	}}
	return id, nil
}

func (r *MemoryRepository) GetDraft(_ context.Context, sellerID, draftID string) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[draftID]
	if !ok || !m.listing.IsDraft || m.listing.SellerID != sellerID {
		return nil, shared.ErrorNotFound
	}
	l := m.listing
	l.Snapshot = m.listing.Snapshot.Clone()
	return &l, nil
}

func (r *MemoryRepository) FindFinalizedByVIN(_ context.Context, vin string) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if !m.listing.IsDraft && m.listing.VIN == vin {
			l := m.listing
			return &l, nil
		}
	}
	return nil, shared.ErrorNotFound
}

func (r *MemoryRepository) Finalize(_ context.Context, draftID string, row Row) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vin, _ := row["vin"].(string)
	for id, m := range r.rows {
		if !m.listing.IsDraft && m.listing.VIN == vin && id != draftID {
			return "", shared.ErrorDuplicateListing
		}
	}

	id := draftID
	if id == "" {
		id = uuid.NewString()
	} else if _, ok := r.rows[id]; !ok {
		return "", shared.ErrorNotFound
	}

	l := models.Listing{ID: id, IsDraft: false, UpdatedAt: time.Now()}
	l.VIN = vin
	if sellerID, ok := row["seller_id"].(string); ok {
		l.SellerID = sellerID
	}
	if title, ok := row["title"].(string); ok {
		l.Title = title
	}
	if price, ok := row["price"].(float64); ok {
		l.Price = price
	}
	if reserve, ok := row["reserve_price"].(float64); ok {
		l.ReservePrice = reserve
	}
	if mileage, ok := row["mileage"].(int); ok {
		l.Mileage = mileage
	}
	r.rows[id] = &memRow{listing: l, row: row}
	return id, nil
}

func (r *MemoryRepository) Columns(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StaticColumns == nil {
		return nil, shared.ErrorConfiguration
	}
	return append([]string(nil), r.StaticColumns...), nil
}

// FinalizedRow exposes the raw row written by Finalize, for assertions.
func (r *MemoryRepository) FinalizedRow(id string) Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.rows[id]; ok {
		return m.row
	}
	return nil
}

// Len reports the number of stored rows.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}
