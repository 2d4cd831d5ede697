package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftSnapshot(sellerID, vin string) *models.FormSnapshot {
	return &models.FormSnapshot{
		SellerID: sellerID,
		VIN:      vin,
		Make:     "Skoda",
		Model:    "Octavia",
		Year:     2020,
		Mileage:  41000,
	}
}

func TestMemory_SaveDraftReusesOpenDraft(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	id1, err := r.SaveDraft(ctx, draftSnapshot("s1", "VIN1"))
	require.NoError(t, err)

	// same seller and vin: the open draft row is reused
	id2, err := r.SaveDraft(ctx, draftSnapshot("s1", "VIN1"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// another seller gets their own draft
	id3, err := r.SaveDraft(ctx, draftSnapshot("s2", "VIN1"))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestMemory_GetDraftScopedToSeller(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	id, err := r.SaveDraft(ctx, draftSnapshot("s1", "VIN1"))
	require.NoError(t, err)

	got, err := r.GetDraft(ctx, "s1", id)
	require.NoError(t, err)
	assert.Equal(t, "VIN1", got.VIN)

	_, err = r.GetDraft(ctx, "s2", id)
	assert.ErrorIs(t, err, shared.ErrorNotFound)
}

func TestMemory_FinalizeAndDuplicate(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	draftID, err := r.SaveDraft(ctx, draftSnapshot("s1", "VIN1"))
	require.NoError(t, err)

	id, err := r.Finalize(ctx, draftID, Row{
		"seller_id": "s1",
		"vin":       "VIN1",
		"title":     "Skoda Octavia 2020",
		"price":     52000.0,
	})
	require.NoError(t, err)
	assert.Equal(t, draftID, id)

	found, err := r.FindFinalizedByVIN(ctx, "VIN1")
	require.NoError(t, err)
	assert.False(t, found.IsDraft)

	// a second finalized listing for the same VIN is rejected
	_, err = r.Finalize(ctx, "", Row{"seller_id": "s2", "vin": "VIN1"})
	assert.ErrorIs(t, err, shared.ErrorDuplicateListing)
}

func TestMemory_ColumnsUnavailable(t *testing.T) {
	r := NewMemoryRepository()
	_, err := r.Columns(context.Background())
	assert.ErrorIs(t, err, shared.ErrorConfiguration)
}

type countingSource struct {
	cols  []string
	err   error
	calls int
}

func (s *countingSource) Columns(context.Context) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.cols, nil
}

func TestSchemaCache_MemoizesWithinTTL(t *testing.T) {
	src := &countingSource{cols: []string{"id", "vin"}}
	c := NewSchemaCache(src, time.Minute)
	ctx := context.Background()

	cols, err := c.Columns(ctx)
	require.NoError(t, err)
	assert.Contains(t, cols, "vin")

	_, err = c.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestSchemaCache_RefreshAfterTTL(t *testing.T) {
	src := &countingSource{cols: []string{"id"}}
	c := NewSchemaCache(src, time.Minute)
	ctx := context.Background()

	_, err := c.Columns(ctx)
	require.NoError(t, err)

	now := time.Now()
	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = c.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestSchemaCache_ServesStaleOnFailure(t *testing.T) {
	src := &countingSource{cols: []string{"id"}}
	c := NewSchemaCache(src, time.Minute)
	ctx := context.Background()

	_, err := c.Columns(ctx)
	require.NoError(t, err)

	src.err = errors.New("introspection gone")
	now := time.Now()
	c.now = func() time.Time { return now.Add(2 * time.Minute) }

	cols, err := c.Columns(ctx)
	require.NoError(t, err)
	assert.Contains(t, cols, "id")
}

func TestSchemaCache_Reset(t *testing.T) {
	src := &countingSource{cols: []string{"id"}}
	c := NewSchemaCache(src, time.Hour)
	ctx := context.Background()

	_, err := c.Columns(ctx)
	require.NoError(t, err)
	c.Reset()
	_, err = c.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}
