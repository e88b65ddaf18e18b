package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucentpay/sift/internal/auth"
	"github.com/lucentpay/sift/internal/model"
	"github.com/lucentpay/sift/internal/ratelimit"
	"github.com/lucentpay/sift/internal/server"
	"github.com/lucentpay/sift/internal/service/screening"
	"github.com/lucentpay/sift/internal/storage"
)

const testAPIKey = "test-bootstrap-key"

type fakeScreener struct {
	resp screening.Response
}

func (f *fakeScreener) Screen(_ context.Context, _ screening.Request) (screening.Response, error) {
	return f.resp, nil
}

type fakeWriter struct {
	entries map[uuid.UUID]model.WatchlistEntry
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{entries: make(map[uuid.UUID]model.WatchlistEntry)}
}

func (f *fakeWriter) Upsert(_ context.Context, e model.WatchlistEntry) (model.WatchlistEntry, error) {
	if e.EntityID == uuid.Nil {
		e.EntityID = uuid.New()
	}
	f.entries[e.EntityID] = e
	return e, nil
}

func (f *fakeWriter) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.entries[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeWriter) Reindex(context.Context) (int, error) {
	return len(f.entries), nil
}

type fakeReader struct {
	writer     *fakeWriter
	screenings []storage.ScreeningRecord
}

func (f *fakeReader) GetEntry(_ context.Context, id uuid.UUID) (model.WatchlistEntry, error) {
	e, ok := f.writer.entries[id]
	if !ok {
		return model.WatchlistEntry{}, storage.ErrNotFound
	}
	return e, nil
}

func (f *fakeReader) ListEntries(_ context.Context, limit, offset int) ([]model.WatchlistEntry, error) {
	out := make([]model.WatchlistEntry, 0, len(f.writer.entries))
	for _, e := range f.writer.entries {
		out = append(out, e)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReader) CountEntries(context.Context) (int, error) {
	return len(f.writer.entries), nil
}

func (f *fakeReader) ListScreenings(_ context.Context, limit, offset int) ([]storage.ScreeningRecord, error) {
	if offset >= len(f.screenings) {
		return nil, nil
	}
	recs := f.screenings[offset:]
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fakeHealth struct{ err error }

func (f *fakeHealth) Healthy(context.Context) error { return f.err }

type testEnv struct {
	srv    *httptest.Server
	writer *fakeWriter
	reader *fakeReader
	pg     *fakePinger
}

func newTestEnv(t *testing.T, opts ...func(*server.Config)) *testEnv {
	t.Helper()

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	keyHash, err := auth.HashAPIKey(testAPIKey)
	require.NoError(t, err)

	writer := newFakeWriter()
	reader := &fakeReader{writer: writer}
	pg := &fakePinger{}

	cfg := server.Config{
		Screener: &fakeScreener{resp: screening.Response{
			Language:    model.LangRU,
			OverallRisk: model.RiskClear,
		}},
		Watchlist:           server.WatchlistDeps{Writer: writer, Reader: reader},
		JWTMgr:              jwtMgr,
		PG:                  pg,
		Logger:              slog.Default(),
		AdminKeyHash:        keyHash,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv := httptest.NewServer(server.New(cfg).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, writer: writer, reader: reader, pg: pg}
}

func (e *testEnv) token(t *testing.T, role auth.Role) string {
	t.Helper()
	body := fmt.Sprintf(`{"client_id":"test-client","api_key":%q,"role":%q}`, testAPIKey, role)
	resp, err := http.Post(e.srv.URL+"/auth/token", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NotEmpty(t, envelope.Data.Token)
	return envelope.Data.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestAuthTokenWrongKey(t *testing.T) {
	env := newTestEnv(t)

	body := `{"client_id":"c","api_key":"wrong"}`
	resp, err := http.Post(env.srv.URL+"/auth/token", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthTokenDefaultRoleIsScreener(t *testing.T) {
	env := newTestEnv(t)

	body := fmt.Sprintf(`{"client_id":"c","api_key":%q}`, testAPIKey)
	resp, err := http.Post(env.srv.URL+"/auth/token", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data struct {
			Role auth.Role `json:"role"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, auth.RoleScreener, envelope.Data.Role)
}

func TestScreenRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/screen", "", map[string]string{"text": "Иван Петров"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScreenReturnsEnvelope(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.RoleScreener)

	resp := env.do(t, http.MethodPost, "/v1/screen", token, map[string]string{"text": "Иван Петров"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var envelope struct {
		Data screening.Response `json:"data"`
		Meta model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, model.LangRU, envelope.Data.Language)
	assert.Equal(t, model.RiskClear, envelope.Data.OverallRisk)
	assert.NotEmpty(t, envelope.Meta.RequestID)
}

func TestScreenEmptyTextRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.RoleScreener)

	resp := env.do(t, http.MethodPost, "/v1/screen", token, map[string]string{"text": ""})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScreenBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, func(cfg *server.Config) {
		cfg.MaxRequestBodyBytes = 64
	})
	token := env.token(t, auth.RoleScreener)

	resp := env.do(t, http.MethodPost, "/v1/screen", token,
		map[string]string{"text": strings.Repeat("а", 200)})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestScreenerCannotManageWatchlist(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.RoleScreener)

	resp := env.do(t, http.MethodPost, "/v1/watchlist", token, map[string]any{
		"kind": "person", "primary_name": "Иван Петров",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWatchlistCRUD(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.RoleAdmin)

	// Create.
	resp := env.do(t, http.MethodPost, "/v1/watchlist", token, map[string]any{
		"kind":         "person",
		"primary_name": "Иван Петров",
		"aliases":      []string{"Ivan Petrov"},
		"has_tin":      true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Data model.WatchlistEntry `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.NotEqual(t, uuid.Nil, created.Data.EntityID)
	assert.Equal(t, "Иван Петров", created.Data.NormalizedName, "normalized_name defaults to primary_name")
	assert.True(t, created.Data.HasTIN)

	// Get.
	resp = env.do(t, http.MethodGet, "/v1/watchlist/"+created.Data.EntityID.String(), token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// List.
	resp = env.do(t, http.MethodGet, "/v1/watchlist", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Data  []model.WatchlistEntry `json:"data"`
		Total *int                   `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Data, 1)
	require.NotNil(t, list.Total)
	assert.Equal(t, 1, *list.Total)

	// Delete.
	resp = env.do(t, http.MethodDelete, "/v1/watchlist/"+created.Data.EntityID.String(), token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// Gone.
	resp = env.do(t, http.MethodGet, "/v1/watchlist/"+created.Data.EntityID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWatchlistInvalidKind(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/v1/watchlist", token, map[string]any{
		"kind": "vessel", "primary_name": "Неизвестный",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListScreenings(t *testing.T) {
	env := newTestEnv(t)
	env.reader.screenings = []storage.ScreeningRecord{
		{ID: uuid.New(), RawText: "Оплата Иван Петров", Language: "ru", Result: []byte(`{}`)},
	}
	token := env.token(t, auth.RoleAdmin)

	resp := env.do(t, http.MethodGet, "/v1/screenings", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Data []storage.ScreeningRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Оплата Иван Петров", list.Data[0].RawText)
}

func TestHealthHealthy(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data model.HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "healthy", envelope.Data.Status)
	assert.Equal(t, "connected", envelope.Data.Postgres)
}

func TestHealthDegradedWhenQdrantDown(t *testing.T) {
	env := newTestEnv(t, func(cfg *server.Config) {
		cfg.Vectors = &fakeHealth{err: fmt.Errorf("connection refused")}
	})

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "vector outage alone keeps the server serving")

	var envelope struct {
		Data model.HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "degraded", envelope.Data.Status)
	assert.Equal(t, "disconnected", envelope.Data.Qdrant)
}

func TestHealthUnhealthyWhenPostgresDown(t *testing.T) {
	env := newTestEnv(t)
	env.pg.err = fmt.Errorf("connection refused")

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestScreenRateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	defer limiter.Close()
	env := newTestEnv(t, func(cfg *server.Config) {
		cfg.Limiter = limiter
	})
	token := env.token(t, auth.RoleScreener)

	resp := env.do(t, http.MethodPost, "/v1/screen", token, map[string]string{"text": "Иван Петров"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/screen", token, map[string]string{"text": "Иван Петров"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestAdminExemptFromRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	defer limiter.Close()
	env := newTestEnv(t, func(cfg *server.Config) {
		cfg.Limiter = limiter
	})
	token := env.token(t, auth.RoleAdmin)

	for i := 0; i < 3; i++ {
		resp := env.do(t, http.MethodPost, "/v1/screen", token, map[string]string{"text": "Иван Петров"})
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "admin request %d", i)
	}
}
