package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/karsell/intake/internal/logging"
	"github.com/karsell/intake/internal/metrics"
	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/shared"
	"github.com/karsell/intake/internal/telemetry"
	"github.com/sethvargo/go-retry"
)

// RemoteStore writes the draft row for a session. SaveDraft creates the
// row when the snapshot carries no draft ID yet, otherwise updates it, and
// returns the bound draft ID either way.
type RemoteStore interface {
	SaveDraft(ctx context.Context, snap *models.FormSnapshot) (string, error)
}

// LocalCache is the TTL'd key/value snapshot cache. Writes are cheap and
// local; they are not subject to remote-save throttling.
type LocalCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Probe reports whether the remote store is currently reachable.
type Probe func(ctx context.Context) bool

// Config holds the engine timing knobs.
type Config struct {
	// Debounce delays the remote save after a field change; further
	// changes within the window reset it.
	Debounce time.Duration
	// InsuranceInterval re-checks for unsaved changes independently of
	// the debounce path.
	InsuranceInterval time.Duration
	// MinSaveInterval throttles remote writes to at most one per interval.
	MinSaveInterval time.Duration
	// CacheTTL is attached to every local cache entry.
	CacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = 2 * time.Second
	}
	if c.InsuranceInterval <= 0 {
		c.InsuranceInterval = 30 * time.Second
	}
	if c.MinSaveInterval <= 0 {
		c.MinSaveInterval = 5 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	return c
}

// Deps are the collaborators an engine needs.
type Deps struct {
	Remote  RemoteStore
	Cache   LocalCache
	Online  Probe
	Sink    telemetry.Sink
	Metrics *metrics.Metrics
	Log     logging.Logger
}

// Engine keeps one session's remote draft row eventually consistent with
// in-memory form state while bounding write frequency and surviving
// connectivity loss. All mutations go through Apply; the engine owns the
// snapshot.
type Engine struct {
	cfg       Config
	sessionID string
	deps      Deps
	detector  *Detector

	mu             sync.Mutex
	snapshot       *models.FormSnapshot
	paused         bool
	offline        bool
	lastRemoteSave time.Time
	inflightCancel context.CancelFunc
	saveGen        uint64

	// saveMu serializes remote save attempts: an explicit save awaits any
	// in-flight autosave simply by taking it.
	saveMu sync.Mutex

	debounce  scheduler
	done      chan struct{}
	closeOnce sync.Once
}

// NewEngine builds an engine around an initial snapshot and starts the
// insurance ticker.
func NewEngine(sessionID string, initial *models.FormSnapshot, deps Deps, cfg Config) *Engine {
	e := &Engine{
		cfg:       cfg.withDefaults(),
		sessionID: sessionID,
		deps:      deps,
		detector:  NewDetector(),
		snapshot:  initial.Clone(),
		done:      make(chan struct{}),
	}
	go e.insuranceLoop()
	return e
}

// Snapshot returns a copy of the current form state.
func (e *Engine) Snapshot() *models.FormSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.Clone()
}

// MarkClean sets the detector baseline to the current snapshot. Used when
// a session resumes from a remote draft that is already up to date.
func (e *Engine) MarkClean() {
	e.detector.SetLastSaved(e.Snapshot())
}

// Apply runs a mutation against the form state, mirrors the critical
// fields to the local cache, and schedules a debounced remote save.
func (e *Engine) Apply(ctx context.Context, mutate func(*models.FormSnapshot)) {
	e.mu.Lock()
	mutate(e.snapshot)
	snap := e.snapshot.Clone()
	paused := e.paused
	e.mu.Unlock()

	// the allowlist write is unconditional so a hard restart never loses
	// vehicle-identifying data, even while autosave is paused
	e.writeCriticalCache(ctx, snap)

	if paused {
		return
	}
	e.debounce.Schedule(e.cfg.Debounce, func() { e.autoSave() })
}

// Pause suspends remote autosave. Local cache writes continue.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.debounce.Stop()
}

// Resume re-enables remote autosave. The next change or insurance tick
// picks up anything edited while paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
}

// SaveNow performs an explicit save. It awaits any in-flight autosave
// first, so the caller always observes its own changes land; concurrent
// callers serialize. The explicit path is not throttled and cannot be
// cancelled by a superseding autosave.
func (e *Engine) SaveNow(ctx context.Context) error {
	e.debounce.Stop()
	return e.save(ctx)
}

// Close stops the timers and cancels any in-flight save.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.debounce.Stop()
		e.mu.Lock()
		if e.inflightCancel != nil {
			e.inflightCancel()
		}
		e.mu.Unlock()
	})
}

// autoSave is the shared entry point for the debounce and insurance
// triggers. It enforces the throttle and supersedes any in-flight save.
func (e *Engine) autoSave() {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return
	}
	if wait := e.cfg.MinSaveInterval - time.Since(e.lastRemoteSave); wait > 0 {
		e.mu.Unlock()
		e.debounce.Schedule(wait, func() { e.autoSave() })
		return
	}
	if e.inflightCancel != nil {
		e.inflightCancel()
		e.inflightCancel = nil
		e.deps.Metrics.SavesCancelled.Inc()
	}
	saveCtx, cancel := context.WithCancel(context.Background())
	e.inflightCancel = cancel
	e.saveGen++
	gen := e.saveGen
	e.mu.Unlock()

	go func() {
		defer cancel()
		_ = e.save(saveCtx)
		e.mu.Lock()
		if e.saveGen == gen {
			e.inflightCancel = nil
		}
		e.mu.Unlock()
	}()
}

// save runs one full save procedure: change check, local cache write,
// then the remote write with baseline update on success. A context
// cancellation means the save was superseded and is not an error.
func (e *Engine) save(ctx context.Context) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	snap := e.snapshot.Clone()
	e.mu.Unlock()

	if !e.detector.HasChanges(snap, snap.DraftID) {
		e.deps.Metrics.SavesSkipped.Inc()
		return nil
	}

	e.writeCriticalCache(ctx, snap)
	e.writeSnapshotCache(ctx, snap)

	if e.deps.Online != nil && !e.deps.Online(ctx) {
		e.setOffline(true)
		e.deps.Log.Info(ctx, "remote store unreachable, draft buffered locally",
			"session", e.sessionID)
		return nil
	}
	if e.wasOffline() {
		e.setOffline(false)
		e.deps.Log.Info(ctx, "connectivity restored, syncing draft", "session", e.sessionID)
	}

	e.deps.Metrics.SavesAttempted.Inc()
	start := time.Now()

	var draftID string
	backoff := retry.WithMaxRetries(2, retry.NewConstant(300*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := e.deps.Remote.SaveDraft(ctx, snap)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return retry.RetryableError(err)
		}
		draftID = id
		return nil
	})
	e.deps.Metrics.SaveDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// superseded by a newer save; the newer one carries the data
			return nil
		}
		e.deps.Metrics.SavesFailed.Inc()
		e.deps.Log.Warn(ctx, "draft save failed, changes are safe locally and will sync later",
			"session", e.sessionID, "error", err)
		telemetry.Notify(e.deps.Sink, telemetry.Event{
			Type:      telemetry.EventDraftSaveFailed,
			SessionID: e.sessionID,
			SellerID:  snap.SellerID,
		})
		return fmt.Errorf("%w: %v", shared.ErrorTransientIO, err)
	}

	now := time.Now()
	e.mu.Lock()
	if e.snapshot.DraftID == "" {
		e.snapshot.DraftID = draftID
	}
	e.snapshot.Meta.LastSavedAt = now
	e.lastRemoteSave = now
	e.mu.Unlock()

	snap.DraftID = draftID
	e.detector.SetLastSaved(snap)

	telemetry.Notify(e.deps.Sink, telemetry.Event{
		Type:      telemetry.EventDraftSaved,
		SessionID: e.sessionID,
		SellerID:  snap.SellerID,
		DraftID:   draftID,
	})
	return nil
}

// insuranceLoop catches anything the debounce path missed, including
// changes buffered while offline.
func (e *Engine) insuranceLoop() {
	ticker := time.NewTicker(e.cfg.InsuranceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			paused := e.paused
			e.mu.Unlock()
			if paused {
				continue
			}
			snap := e.Snapshot()
			if e.detector.HasChanges(snap, snap.DraftID) {
				e.autoSave()
			}
		}
	}
}

func (e *Engine) setOffline(v bool) {
	e.mu.Lock()
	e.offline = v
	e.mu.Unlock()
}

func (e *Engine) wasOffline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offline
}

// Local cache key layout: one entry per critical field plus the full
// serialized snapshot, namespaced by session.
const (
	cacheFieldSnapshot = "snapshot"
	cacheFieldVIN      = "vin"
	cacheFieldMileage  = "mileage"
	cacheFieldGearbox  = "gearbox"
	cacheFieldStep     = "step"
)

// CacheKey builds the namespaced key for one cached field of a session.
func CacheKey(sessionID, field string) string {
	return "draft:" + sessionID + ":" + field
}

func (e *Engine) writeCriticalCache(ctx context.Context, snap *models.FormSnapshot) {
	set := func(field, value string) {
		if value == "" {
			return
		}
		if err := e.deps.Cache.Set(ctx, CacheKey(e.sessionID, field), []byte(value), e.cfg.CacheTTL); err != nil {
			e.deps.Log.Warn(ctx, "local cache write failed", "field", field, "error", err)
		}
	}
	set(cacheFieldVIN, snap.VIN)
	set(cacheFieldGearbox, snap.Transmission)
	if snap.Mileage > 0 {
		set(cacheFieldMileage, strconv.Itoa(snap.Mileage))
	}
	set(cacheFieldStep, strconv.Itoa(snap.Meta.Step))
}

func (e *Engine) writeSnapshotCache(ctx context.Context, snap *models.FormSnapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		e.deps.Log.Warn(ctx, "snapshot marshal failed", "error", err)
		return
	}
	if err := e.deps.Cache.Set(ctx, CacheKey(e.sessionID, cacheFieldSnapshot), b, e.cfg.CacheTTL); err != nil {
		e.deps.Log.Warn(ctx, "local cache write failed", "field", cacheFieldSnapshot, "error", err)
	}
}

// Restore loads the last locally cached state for a session: the full
// snapshot when present, otherwise whatever critical fields survive under
// their individual keys. Returns shared.ErrorNotFound when nothing usable
// is cached.
func Restore(ctx context.Context, cache LocalCache, sessionID, sellerID string) (*models.FormSnapshot, error) {
	if b, err := cache.Get(ctx, CacheKey(sessionID, cacheFieldSnapshot)); err == nil && len(b) > 0 {
		var s models.FormSnapshot
		if err := json.Unmarshal(b, &s); err == nil {
			s.SellerID = sellerID
			// Meta is excluded from the serialized snapshot; the step
			// index lives under its own key
			if sb, err := cache.Get(ctx, CacheKey(sessionID, cacheFieldStep)); err == nil && len(sb) > 0 {
				if n, convErr := strconv.Atoi(string(sb)); convErr == nil {
					s.Meta.Step = n
				}
			}
			return &s, nil
		}
	}

	s := &models.FormSnapshot{SellerID: sellerID}
	found := false
	if b, err := cache.Get(ctx, CacheKey(sessionID, cacheFieldVIN)); err == nil && len(b) > 0 {
		s.VIN = string(b)
		found = true
	}
	if b, err := cache.Get(ctx, CacheKey(sessionID, cacheFieldGearbox)); err == nil && len(b) > 0 {
		s.Transmission = string(b)
		found = true
	}
	if b, err := cache.Get(ctx, CacheKey(sessionID, cacheFieldMileage)); err == nil && len(b) > 0 {
		if n, convErr := strconv.Atoi(string(b)); convErr == nil {
			s.Mileage = n
			found = true
		}
	}
	if b, err := cache.Get(ctx, CacheKey(sessionID, cacheFieldStep)); err == nil && len(b) > 0 {
		if n, convErr := strconv.Atoi(string(b)); convErr == nil {
			s.Meta.Step = n
		}
	}
	if !found {
		return nil, shared.ErrorNotFound
	}
	return s, nil
}

// CachedMileage returns the last mileage written to the local cache for a
// session. The reconciler uses it as the fallback when the valuation
// payload carries no mileage.
func CachedMileage(ctx context.Context, cache LocalCache, sessionID string) (int, bool) {
	b, err := cache.Get(ctx, CacheKey(sessionID, cacheFieldMileage))
	if err != nil || len(b) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(b))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ClearSessionCache removes the cached entries for a session after a
// successful submission.
func ClearSessionCache(ctx context.Context, cache LocalCache, sessionID string) {
	for _, field := range []string{cacheFieldSnapshot, cacheFieldVIN, cacheFieldMileage, cacheFieldGearbox, cacheFieldStep} {
		_ = cache.Delete(ctx, CacheKey(sessionID, field))
	}
}
