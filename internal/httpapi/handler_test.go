package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/karsell/intake/internal/auth"
	"github.com/karsell/intake/internal/draft"
	"github.com/karsell/intake/internal/logging"
	"github.com/karsell/intake/internal/metrics"
	"github.com/karsell/intake/internal/session"
	"github.com/karsell/intake/internal/storage/listings"
	"github.com/karsell/intake/internal/storage/valuationstash"
	"github.com/karsell/intake/internal/submit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

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

type memUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (u *memUploader) Upload(_ context.Context, key string, data []byte, _ string, _ bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.objects == nil {
		u.objects = map[string][]byte{}
	}
	u.objects[key] = data
	return nil
}

func (u *memUploader) PublicURL(key string) string { return "https://cdn.test/" + key }

type env struct {
	server   *httptest.Server
	repo     *listings.MemoryRepository
	registry *session.Registry
	uploader *memUploader
}

func newEnv(t *testing.T) *env {
	t.Helper()

	repo := listings.NewMemoryRepository()
	cache := newMemCache()
	stash := valuationstash.NewMemory()
	log := logging.NewSlogLogger(slog.Default())
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	deps := draft.Deps{
		Remote:  repo,
		Cache:   cache,
		Online:  func(context.Context) bool { return true },
		Metrics: m,
		Log:     log,
	}
	registry := session.NewRegistry(repo, deps, draft.Config{
		Debounce:          10 * time.Millisecond,
		InsuranceInterval: time.Hour,
		MinSaveInterval:   time.Millisecond,
	}, time.Hour, m, log)

	rec := submit.New(repo, listings.NewSchemaCache(repo, time.Minute), stash, cache,
		nil, m, log, time.Minute)

	uploader := &memUploader{}
	h := NewHandler(registry, rec, stash, uploader, log)
	srv := httptest.NewServer(NewRouter(h, testSecret, promReg))
	t.Cleanup(func() {
		srv.Close()
		registry.Shutdown(context.Background())
	})
	return &env{server: srv, repo: repo, registry: registry, uploader: uploader}
}

func (e *env) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func token(t *testing.T, sellerID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(sellerID, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAPI_RequiresBearer(t *testing.T) {
	e := newEnv(t)
	resp := e.request(t, http.MethodPost, "/api/v1/sessions", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_OpenAndUpdateSession(t *testing.T) {
	e := newEnv(t)
	tok := token(t, "seller-1")

	resp := e.request(t, http.MethodPost, "/api/v1/sessions", tok, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	opened := decode[sessionResponse](t, resp)
	require.NotEmpty(t, opened.SessionID)

	resp = e.request(t, http.MethodPatch, "/api/v1/sessions/"+opened.SessionID, tok, map[string]any{
		"vin":     "WAUZZZ8K9DA000001",
		"make":    "Audi",
		"model":   "A4",
		"year":    2013,
		"mileage": 150000,
		"step":    2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[sessionResponse](t, resp)
	assert.Equal(t, "WAUZZZ8K9DA000001", updated.Snapshot.VIN)
	assert.Equal(t, 2013, updated.Snapshot.Year)
	assert.Equal(t, 2, updated.Step)
}

func TestAPI_SessionOwnership(t *testing.T) {
	e := newEnv(t)

	resp := e.request(t, http.MethodPost, "/api/v1/sessions", token(t, "seller-1"), nil)
	opened := decode[sessionResponse](t, resp)

	resp = e.request(t, http.MethodGet, "/api/v1/sessions/"+opened.SessionID, token(t, "seller-2"), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_UnknownSession(t *testing.T) {
	e := newEnv(t)
	resp := e.request(t, http.MethodGet, "/api/v1/sessions/missing", token(t, "seller-1"), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SaveBindsDraft(t *testing.T) {
	e := newEnv(t)
	tok := token(t, "seller-1")

	opened := decode[sessionResponse](t, e.request(t, http.MethodPost, "/api/v1/sessions", tok, nil))
	base := "/api/v1/sessions/" + opened.SessionID

	resp := e.request(t, http.MethodPatch, base, tok, map[string]any{"vin": "VIN1", "make": "Opel"})
	resp.Body.Close()

	resp = e.request(t, http.MethodPost, base+"/save", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[sessionResponse](t, resp)
	assert.NotEmpty(t, saved.DraftID)
	assert.NotNil(t, saved.LastSavedAt)
	assert.Equal(t, 1, e.repo.Len())
}

func TestAPI_SubmitFlow(t *testing.T) {
	e := newEnv(t)
	tok := token(t, "seller-1")

	opened := decode[sessionResponse](t, e.request(t, http.MethodPost, "/api/v1/sessions", tok, nil))
	base := "/api/v1/sessions/" + opened.SessionID

	resp := e.request(t, http.MethodPatch, base, tok, map[string]any{
		"vin": "WVWZZZ1JZXW000001", "make": "Volkswagen", "model": "Golf",
		"year": 2018, "mileage": 84000, "transmission": "manual",
		"personal": map[string]string{"name": "Jan", "email": "jan@example.com", "mobileNumber": "+48500100200"},
	})
	resp.Body.Close()

	valuation := map[string]any{
		"make": "Volkswagen", "model": "Golf", "year": 2018,
		"vin": "WVWZZZ1JZXW000001", "mileage": 84000,
		"functionResponse": map[string]any{"valuation": map[string]any{"calcValuation": map[string]any{"price": 45000}}},
	}
	resp = e.request(t, http.MethodPut, base+"/valuation", tok, valuation)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.request(t, http.MethodPost, base+"/submit", tok, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[submitResponse](t, resp)
	require.True(t, res.Success)
	require.NotEmpty(t, res.ListingID)

	row := e.repo.FinalizedRow(res.ListingID)
	require.NotNil(t, row)
	assert.Equal(t, "Volkswagen Golf 2018", row["title"])

	// the session is gone once the listing exists
	resp = e.request(t, http.MethodGet, base, tok, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SubmitWithoutPriceSignal(t *testing.T) {
	e := newEnv(t)
	tok := token(t, "seller-1")

	opened := decode[sessionResponse](t, e.request(t, http.MethodPost, "/api/v1/sessions", tok, nil))
	base := "/api/v1/sessions/" + opened.SessionID

	resp := e.request(t, http.MethodPatch, base, tok, map[string]any{
		"vin": "VIN1", "make": "Opel", "model": "Corsa", "year": 2015, "mileage": 60000,
	})
	resp.Body.Close()

	// identity fields only, nothing price-like anywhere
	resp = e.request(t, http.MethodPut, base+"/valuation", tok, map[string]any{
		"make": "Opel", "model": "Corsa", "year": 2015, "vin": "VIN1", "mileage": 60000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.request(t, http.MethodPost, base+"/submit", tok, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	failed := decode[errorResponse](t, resp)
	assert.Equal(t, "validation_failed", failed.Error.Code)
	assert.Equal(t, "price", failed.Error.Field)
	assert.Equal(t, "return to valuation step", failed.Error.Hint)
}

func TestAPI_SubmitWithoutValuation(t *testing.T) {
	e := newEnv(t)
	tok := token(t, "seller-1")

	opened := decode[sessionResponse](t, e.request(t, http.MethodPost, "/api/v1/sessions", tok, nil))

	resp := e.request(t, http.MethodPost, "/api/v1/sessions/"+opened.SessionID+"/submit", tok, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	failed := decode[errorResponse](t, resp)
	assert.False(t, failed.Success)
	assert.Equal(t, "no_valuation", failed.Error.Code)

	// the session survives a failed submission
	resp = e.request(t, http.MethodGet, "/api/v1/sessions/"+opened.SessionID, tok, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_PhotoUpload(t *testing.T) {
	e := newEnv(t)
	tok := token(t, "seller-1")

	opened := decode[sessionResponse](t, e.request(t, http.MethodPost, "/api/v1/sessions", tok, nil))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("photo", "front.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost,
		e.server.URL+"/api/v1/sessions/"+opened.SessionID+"/photos", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	up := decode[uploadResponse](t, resp)
	require.True(t, up.Success)
	assert.Contains(t, up.URL, up.Path)
	assert.Contains(t, e.uploader.objects, up.Path)

	got := decode[sessionResponse](t, e.request(t, http.MethodGet, "/api/v1/sessions/"+opened.SessionID, tok, nil))
	require.Len(t, got.Snapshot.Photos, 1)
	assert.Equal(t, "front.jpg", got.Snapshot.Photos[0].Name)
	assert.Equal(t, up.Path, got.Snapshot.Photos[0].Path)
}

func TestAPI_Healthz(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Metrics(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
