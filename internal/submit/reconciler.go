// Package submit turns a completed form session into a finalized listing
// row: it validates the valuation payload, rejects duplicate VINs,
// transforms form state into the schema-shaped entity, and commits it.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/karsell/intake/internal/draft"
	"github.com/karsell/intake/internal/logging"
	"github.com/karsell/intake/internal/metrics"
	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/shared"
	"github.com/karsell/intake/internal/storage/listings"
	"github.com/karsell/intake/internal/storage/valuationstash"
	"github.com/karsell/intake/internal/telemetry"
	"github.com/karsell/intake/internal/valuation"
)

const valuationHint = "return to valuation step"

// Result reports a successful submission.
type Result struct {
	ListingID string
}

// Reconciler performs final submission. It is safe for concurrent use
// across sessions; one session submits at most once.
type Reconciler struct {
	repo    listings.Repository
	schema  *listings.SchemaCache
	stash   valuationstash.Stash
	cache   draft.LocalCache
	sink    telemetry.Sink
	metrics *metrics.Metrics
	log     logging.Logger
	timeout time.Duration
}

// New builds a reconciler. timeout bounds the whole submission; media
// heavy listings can legitimately take a while, so it is on the order of
// minutes.
func New(repo listings.Repository, schema *listings.SchemaCache, stash valuationstash.Stash,
	cache draft.LocalCache, sink telemetry.Sink, m *metrics.Metrics, log logging.Logger,
	timeout time.Duration) *Reconciler {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Reconciler{
		repo: repo, schema: schema, stash: stash, cache: cache,
		sink: sink, metrics: m, log: log, timeout: timeout,
	}
}

// Submit runs Validating → CheckingDuplicate → Transforming → Writing,
// short-circuiting into a typed error at any stage. Validation and
// duplicate failures perform zero writes.
func (r *Reconciler) Submit(ctx context.Context, sessionID string, snap *models.FormSnapshot, sellerID, draftID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.submit(ctx, sessionID, snap, sellerID, draftID)
	if err != nil {
		r.metrics.ObserveSubmission(outcome(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, shared.ErrorSubmissionTimeout
		}
		return nil, err
	}
	r.metrics.ObserveSubmission("success")
	return res, nil
}

func (r *Reconciler) submit(ctx context.Context, sessionID string, snap *models.FormSnapshot, sellerID, draftID string) (*Result, error) {
	if sellerID == "" {
		return nil, shared.ErrorNoSellerID
	}

	// Validating
	val, err := r.stash.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateValuation(val); err != nil {
		return nil, err
	}
	if err := snap.ValidateSections(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrorValidation, err)
	}

	vin := snap.VIN
	if vin == "" {
		vin = val.VIN
	}

	mileage, err := r.resolveMileage(ctx, sessionID, snap, val)
	if err != nil {
		return nil, err
	}

	price, ok := valuation.ExtractFromRaw(val.Raw)
	if !ok {
		return nil, shared.NewFieldError("price", "no usable price signal in valuation", valuationHint)
	}

	// CheckingDuplicate
	existing, err := r.repo.FindFinalizedByVIN(ctx, vin)
	if err != nil && !errors.Is(err, shared.ErrorNotFound) {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if existing != nil {
		return nil, shared.ErrorDuplicateListing
	}

	// Transforming
	snap = snap.Clone()
	snap.SellerID = sellerID
	row := buildRow(snap, val, vin, price, mileage)

	cols, err := r.schema.Columns(ctx)
	if err != nil {
		r.log.Warn(ctx, "schema introspection unavailable, using static allowlist", "error", err)
		cols = staticColumnSet()
	}
	row = filterRow(row, cols)

	// Writing
	listingID, err := r.repo.Finalize(ctx, draftID, row)
	if err != nil {
		return nil, err
	}

	// session-scoped caches are consumed exactly once
	if err := r.stash.Clear(ctx, sessionID); err != nil {
		r.log.Warn(ctx, "failed to clear valuation stash", "session", sessionID, "error", err)
	}
	draft.ClearSessionCache(ctx, r.cache, sessionID)

	r.log.Info(ctx, "listing finalized", "session", sessionID, "listing", listingID, "vin", vin)
	telemetry.Notify(r.sink, telemetry.Event{
		Type:      telemetry.EventListingSubmitted,
		SessionID: sessionID,
		SellerID:  sellerID,
		DraftID:   draftID,
		Fields:    map[string]any{"listingId": listingID},
	})
	return &Result{ListingID: listingID}, nil
}

// resolveMileage prefers the valuation payload, then the locally cached
// value, then the form snapshot itself.
func (r *Reconciler) resolveMileage(ctx context.Context, sessionID string, snap *models.FormSnapshot, val *models.ValuationPayload) (int, error) {
	if val.Mileage > 0 {
		return val.Mileage, nil
	}
	if cached, ok := draft.CachedMileage(ctx, r.cache, sessionID); ok {
		return cached, nil
	}
	if snap.Mileage > 0 {
		return snap.Mileage, nil
	}
	return 0, shared.NewFieldError("mileage", "missing from valuation and local cache", valuationHint)
}

// validateValuation checks the vehicle-identity fields of the payload,
// reporting the first missing one by name.
func validateValuation(val *models.ValuationPayload) error {
	if val == nil {
		return shared.ErrorNoValuation
	}
	if val.Make == "" {
		return shared.NewFieldError("make", "missing from valuation", valuationHint)
	}
	if val.Model == "" {
		return shared.NewFieldError("model", "missing from valuation", valuationHint)
	}
	if val.VIN == "" {
		return shared.NewFieldError("vin", "missing from valuation", valuationHint)
	}
	if val.Year == 0 {
		return shared.NewFieldError("year", "missing from valuation", valuationHint)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, shared.ErrorDuplicateListing):
		return "duplicate"
	case errors.Is(err, shared.ErrorValidation), errors.Is(err, shared.ErrorNoValuation):
		return "validation_failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, shared.ErrorSubmissionTimeout):
		return "timeout"
	default:
		return "error"
	}
}
