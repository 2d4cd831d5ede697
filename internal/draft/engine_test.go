package draft

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/karsell/intake/internal/logging"
	"github.com/karsell/intake/internal/metrics"
	"github.com/karsell/intake/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is an in-memory LocalCache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// fakeRemote records draft saves and can delay or fail them.
type fakeRemote struct {
	mu        sync.Mutex
	saves     []*models.FormSnapshot
	cancelled int
	delay     time.Duration
	err       error
}

func (r *fakeRemote) SaveDraft(ctx context.Context, snap *models.FormSnapshot) (string, error) {
	if r.delay > 0 {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.cancelled++
			r.mu.Unlock()
			return "", ctx.Err()
		case <-time.After(r.delay):
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.saves = append(r.saves, snap.Clone())
	return "draft-1", nil
}

func (r *fakeRemote) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *fakeRemote) lastSave() *models.FormSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saves) == 0 {
		return nil
	}
	return r.saves[len(r.saves)-1]
}

func testDeps(remote RemoteStore, cache LocalCache, online Probe) Deps {
	return Deps{
		Remote:  remote,
		Cache:   cache,
		Online:  online,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Log:     logging.NewSlogLogger(slog.Default()),
	}
}

func fastConfig() Config {
	return Config{
		Debounce:          30 * time.Millisecond,
		InsuranceInterval: time.Hour,
		MinSaveInterval:   time.Millisecond,
		CacheTTL:          time.Hour,
	}
}

func TestEngine_RapidEditsProduceOneSave(t *testing.T) {
	remote := &fakeRemote{}
	cache := newMemCache()
	e := NewEngine("sess-1", sampleSnapshot(), testDeps(remote, cache, nil), fastConfig())
	defer e.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		mileage := 84000 + i
		e.Apply(ctx, func(s *models.FormSnapshot) { s.Mileage = mileage })
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return remote.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	// no straggler writes
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, remote.saveCount())
	assert.Equal(t, 84009, remote.lastSave().Mileage)
}

func TestEngine_NewSaveCancelsInflight(t *testing.T) {
	remote := &fakeRemote{delay: 80 * time.Millisecond}
	cache := newMemCache()
	cfg := fastConfig()
	cfg.Debounce = 10 * time.Millisecond
	e := NewEngine("sess-1", sampleSnapshot(), testDeps(remote, cache, nil), cfg)
	defer e.Close()

	ctx := context.Background()
	e.Apply(ctx, func(s *models.FormSnapshot) { s.Mileage = 85000 })
	// let the first save get in flight, then supersede it
	time.Sleep(30 * time.Millisecond)
	e.Apply(ctx, func(s *models.FormSnapshot) { s.Mileage = 86000 })

	require.Eventually(t, func() bool { return remote.saveCount() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	remote.mu.Lock()
	cancelled := remote.cancelled
	remote.mu.Unlock()
	assert.Equal(t, 1, cancelled, "first in-flight save should have been cancelled")
	assert.Equal(t, 86000, remote.lastSave().Mileage, "final state must reflect the latest snapshot")
}

func TestEngine_SaveNowSerializesWithAutosave(t *testing.T) {
	remote := &fakeRemote{delay: 40 * time.Millisecond}
	cache := newMemCache()
	cfg := fastConfig()
	cfg.Debounce = 5 * time.Millisecond
	e := NewEngine("sess-1", sampleSnapshot(), testDeps(remote, cache, nil), cfg)
	defer e.Close()

	ctx := context.Background()
	e.Apply(ctx, func(s *models.FormSnapshot) { s.Mileage = 85000 })
	time.Sleep(15 * time.Millisecond) // autosave now in flight

	e.Apply(ctx, func(s *models.FormSnapshot) { s.Personal.Name = "Jan Kowalski" })
	require.NoError(t, e.SaveNow(ctx))

	last := remote.lastSave()
	require.NotNil(t, last)
	assert.Equal(t, "Jan Kowalski", last.Personal.Name)
}

func TestEngine_SkipsWhenNothingChanged(t *testing.T) {
	remote := &fakeRemote{}
	cache := newMemCache()
	e := NewEngine("sess-1", sampleSnapshot(), testDeps(remote, cache, nil), fastConfig())
	defer e.Close()

	ctx := context.Background()
	require.NoError(t, e.SaveNow(ctx))
	require.Equal(t, 1, remote.saveCount())

	// baseline now matches; a second explicit save writes nothing
	require.NoError(t, e.SaveNow(ctx))
	assert.Equal(t, 1, remote.saveCount())
}

func TestEngine_PauseSuspendsRemoteWrites(t *testing.T) {
	remote := &fakeRemote{}
	cache := newMemCache()
	e := NewEngine("sess-1", sampleSnapshot(), testDeps(remote, cache, nil), fastConfig())
	defer e.Close()

	ctx := context.Background()
	e.Pause()
	e.Apply(ctx, func(s *models.FormSnapshot) { s.VIN = "NEWVIN0000000001" })
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, remote.saveCount())

	// critical fields still reached the local cache while paused
	b, err := cache.Get(ctx, CacheKey("sess-1", cacheFieldVIN))
	require.NoError(t, err)
	assert.Equal(t, "NEWVIN0000000001", string(b))

	e.Resume()
	require.NoError(t, e.SaveNow(ctx))
	assert.Equal(t, 1, remote.saveCount())
}

func TestEngine_OfflineBuffersLocally(t *testing.T) {
	remote := &fakeRemote{}
	cache := newMemCache()

	var mu sync.Mutex
	online := false
	probe := func(context.Context) bool {
		mu.Lock()
		defer mu.Unlock()
		return online
	}

	cfg := fastConfig()
	cfg.InsuranceInterval = 25 * time.Millisecond
	e := NewEngine("sess-1", sampleSnapshot(), testDeps(remote, cache, probe), cfg)
	defer e.Close()

	ctx := context.Background()
	e.Apply(ctx, func(s *models.FormSnapshot) { s.Mileage = 90000 })
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, remote.saveCount())

	// snapshot survived locally
	restored, err := Restore(ctx, cache, "sess-1", "seller-1")
	require.NoError(t, err)
	assert.Equal(t, 90000, restored.Mileage)

	// connectivity returns; the insurance tick syncs the buffered draft
	mu.Lock()
	online = true
	mu.Unlock()
	require.Eventually(t, func() bool { return remote.saveCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 90000, remote.lastSave().Mileage)
}

func TestEngine_RemoteFailureIsRecoverable(t *testing.T) {
	remote := &fakeRemote{err: errors.New("connection reset")}
	cache := newMemCache()
	e := NewEngine("sess-1", sampleSnapshot(), testDeps(remote, cache, nil), fastConfig())
	defer e.Close()

	ctx := context.Background()
	err := e.SaveNow(ctx)
	require.Error(t, err)

	// the local cache still holds the full snapshot
	b, cacheErr := cache.Get(ctx, CacheKey("sess-1", cacheFieldSnapshot))
	require.NoError(t, cacheErr)
	assert.NotEmpty(t, b)
}

func TestEngine_DraftIDBoundAfterFirstSave(t *testing.T) {
	remote := &fakeRemote{}
	cache := newMemCache()
	e := NewEngine("sess-1", sampleSnapshot(), testDeps(remote, cache, nil), fastConfig())
	defer e.Close()

	require.NoError(t, e.SaveNow(context.Background()))
	assert.Equal(t, "draft-1", e.Snapshot().DraftID)
}

func TestRestore_CriticalFieldRoundTrip(t *testing.T) {
	remote := &fakeRemote{}
	cache := newMemCache()
	e := NewEngine("sess-1", &models.FormSnapshot{SellerID: "seller-1"}, testDeps(remote, cache, nil), fastConfig())

	ctx := context.Background()
	e.Apply(ctx, func(s *models.FormSnapshot) {
		s.VIN = "WVWZZZ1JZXW000001"
		s.Make = "Volkswagen"
		s.Model = "Golf"
		s.Year = 2018
		s.Mileage = 84000
		s.Transmission = "manual"
		s.Meta.Step = 4
	})
	require.NoError(t, e.SaveNow(ctx))
	e.Close()

	restored, err := Restore(ctx, cache, "sess-1", "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "WVWZZZ1JZXW000001", restored.VIN)
	assert.Equal(t, "Volkswagen", restored.Make)
	assert.Equal(t, "Golf", restored.Model)
	assert.Equal(t, 2018, restored.Year)
	assert.Equal(t, 84000, restored.Mileage)
	assert.Equal(t, "manual", restored.Transmission)
	// the snapshot entry omits Meta, so the step must come back from
	// its own cache key
	assert.Equal(t, 4, restored.Meta.Step)
}

func TestRestore_FallsBackToIndividualKeys(t *testing.T) {
	cache := newMemCache()
	ctx := context.Background()
	// only the allowlisted keys survived (e.g. snapshot entry corrupted away)
	require.NoError(t, cache.Set(ctx, CacheKey("sess-2", cacheFieldVIN), []byte("VIN123"), time.Hour))
	require.NoError(t, cache.Set(ctx, CacheKey("sess-2", cacheFieldMileage), []byte("70000"), time.Hour))
	require.NoError(t, cache.Set(ctx, CacheKey("sess-2", cacheFieldGearbox), []byte("automatic"), time.Hour))

	restored, err := Restore(ctx, cache, "sess-2", "seller-9")
	require.NoError(t, err)
	assert.Equal(t, "VIN123", restored.VIN)
	assert.Equal(t, 70000, restored.Mileage)
	assert.Equal(t, "automatic", restored.Transmission)
	assert.Equal(t, "seller-9", restored.SellerID)
}

func TestRestore_NothingCached(t *testing.T) {
	_, err := Restore(context.Background(), newMemCache(), "sess-3", "seller-1")
	assert.Error(t, err)
}
