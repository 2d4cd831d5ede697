// Package session tracks the live intake sessions of the service. Each
// open session owns one draft engine; the registry creates them on open,
// resumes form state from the local cache or the remote draft row, and
// evicts engines that have gone idle.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/karsell/intake/internal/draft"
	"github.com/karsell/intake/internal/logging"
	"github.com/karsell/intake/internal/metrics"
	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/shared"
	"github.com/karsell/intake/internal/storage/listings"
)

// Session is one seller's open intake form.
type Session struct {
	ID       string
	SellerID string
	Engine   *draft.Engine

	mu        sync.Mutex
	lastTouch time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastTouch = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouch
}

// Registry holds the live sessions. Safe for concurrent use.
type Registry struct {
	repo    listings.Repository
	deps    draft.Deps
	cfg     draft.Config
	idleTTL time.Duration
	metrics *metrics.Metrics
	log     logging.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds a registry. idleTTL bounds how long an untouched
// session keeps its engine alive; zero means one hour.
func NewRegistry(repo listings.Repository, deps draft.Deps, cfg draft.Config,
	idleTTL time.Duration, m *metrics.Metrics, log logging.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	return &Registry{
		repo:     repo,
		deps:     deps,
		cfg:      cfg,
		idleTTL:  idleTTL,
		metrics:  m,
		log:      log,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

// Open starts a session for a seller. A client reopening its previous
// session passes the old session ID back; cached form state is keyed by
// it. Resume prefers the locally cached snapshot over the remote draft
// row; a fresh session starts from an empty snapshot.
func (r *Registry) Open(ctx context.Context, sellerID, prevSessionID, draftID string) (*Session, error) {
	if sellerID == "" {
		return nil, shared.ErrorNoSellerID
	}

	id := prevSessionID
	if id == "" {
		id = uuid.NewString()
	} else {
		r.mu.Lock()
		live, ok := r.sessions[id]
		r.mu.Unlock()
		if ok {
			if live.SellerID != sellerID {
				return nil, shared.ErrorUnauthorized
			}
			live.touch(r.now())
			return live, nil
		}
	}
	snap := r.resume(ctx, id, sellerID, draftID)

	eng := draft.NewEngine(id, snap, r.deps, r.cfg)
	if snap.DraftID != "" {
		eng.MarkClean()
	}

	s := &Session{ID: id, SellerID: sellerID, Engine: eng, lastTouch: r.now()}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	r.metrics.OpenSessions.Inc()

	r.log.Info(ctx, "session opened", "session", id, "seller", sellerID, "draft", snap.DraftID)
	return s, nil
}

// resume recovers form state for a reopened session: cached snapshot
// first, then the remote draft row, then empty.
func (r *Registry) resume(ctx context.Context, sessionID, sellerID, draftID string) *models.FormSnapshot {
	if snap, err := draft.Restore(ctx, r.deps.Cache, sessionID, sellerID); err == nil {
		if snap.DraftID == "" {
			snap.DraftID = draftID
		}
		return snap
	}
	if draftID == "" {
		return &models.FormSnapshot{SellerID: sellerID}
	}

	listing, err := r.repo.GetDraft(ctx, sellerID, draftID)
	if err == nil && listing.Snapshot != nil {
		snap := listing.Snapshot.Clone()
		snap.SellerID = sellerID
		snap.DraftID = listing.ID
		return snap
	}
	if err != nil && !errors.Is(err, shared.ErrorNotFound) {
		r.log.Warn(ctx, "draft resume failed, starting empty", "session", sessionID, "draft", draftID, "error", err)
	}
	return &models.FormSnapshot{SellerID: sellerID, DraftID: draftID}
}

// Get returns a live session and refreshes its idle clock.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, shared.ErrorSessionNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Close flushes and tears down one session. A final save failure is
// logged, not returned; the local cache still holds the state.
func (r *Registry) Close(ctx context.Context, sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.shutdown(ctx, s)
}

// Discard tears a session down without a final flush. Used after
// successful submission, when the draft row no longer exists and a
// flush would recreate it.
func (r *Registry) Discard(ctx context.Context, sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.Engine.Close()
	draft.ClearSessionCache(ctx, r.deps.Cache, sessionID)
	r.metrics.OpenSessions.Dec()
}

// EvictIdle closes every session untouched for longer than the idle TTL
// and reports how many were evicted.
func (r *Registry) EvictIdle(ctx context.Context) int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.log.Info(ctx, "evicting idle session", "session", s.ID, "seller", s.SellerID)
		r.shutdown(ctx, s)
	}
	return len(idle)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown closes every session, flushing unsaved changes.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = map[string]*Session{}
	r.mu.Unlock()

	for _, s := range all {
		r.shutdown(ctx, s)
	}
}

func (r *Registry) shutdown(ctx context.Context, s *Session) {
	if err := s.Engine.SaveNow(ctx); err != nil {
		r.log.Warn(ctx, "final save on session close failed", "session", s.ID, "error", err)
	}
	s.Engine.Close()
	r.metrics.OpenSessions.Dec()
}
