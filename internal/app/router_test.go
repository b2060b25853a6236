package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/payload-sanitizer/internal/adapter/httpserver"
	"github.com/fairyhunter13/payload-sanitizer/internal/app"
	"github.com/fairyhunter13/payload-sanitizer/internal/config"
	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
	"github.com/fairyhunter13/payload-sanitizer/internal/usecase"
)

type repoStub struct{}

func (repoStub) Create(domain.Context, domain.Batch) (string, error) { return "b-1", nil }
func (repoStub) Get(domain.Context, string) (domain.Batch, error) {
	return domain.Batch{}, domain.ErrNotFound
}
func (repoStub) UpdateStatus(domain.Context, string, domain.BatchStatus, *string) error { return nil }
func (repoStub) SetResult(domain.Context, string, []*string) error                      { return nil }
func (repoStub) FindByIdempotencyKey(domain.Context, string) (domain.Batch, error) {
	return domain.Batch{}, domain.ErrNotFound
}

type queueStub struct{}

func (queueStub) EnqueueSanitize(_ domain.Context, p domain.SanitizeTaskPayload) (string, error) {
	return p.BatchID, nil
}

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"*"}, app.ParseOrigins(""))
	assert.Equal(t, []string{"*"}, app.ParseOrigins("*"))
	assert.Equal(t, []string{"https://a.example"}, app.ParseOrigins("https://a.example"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, app.ParseOrigins(" https://a.example , https://b.example "))
	assert.Equal(t, []string{"*"}, app.ParseOrigins(" , "))
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Config{AppEnv: "test", RateLimitPerMin: 100, CORSAllowOrigins: "*"}
	ok := func(context.Context) error { return nil }
	batches := usecase.NewBatchService(repoStub{}, queueStub{}, nil, nil, 0)
	srv := httpserver.NewServer(cfg, config.LimitsProfile{}, usecase.NewSanitizeService(), batches, ok, ok, ok)
	return app.BuildRouter(cfg, srv)
}

func TestBuildRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	r := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildRouter_SanitizeRoute(t *testing.T) {
	t.Parallel()
	r := newRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sanitize", nil)
	r.ServeHTTP(rec, req)
	// Empty body is rejected by the handler, but the route must exist.
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestBuildReadinessChecks(t *testing.T) {
	t.Parallel()
	dbCheck, redisCheck, kafkaCheck := app.BuildReadinessChecks(nil, nil, nil)
	require.Error(t, dbCheck(context.Background()))
	require.Error(t, redisCheck(context.Background()))
	require.Error(t, kafkaCheck(context.Background()))

	dbCheck, redisCheck, _ = app.BuildReadinessChecks(pingerStub{}, redisStub{}, nil)
	require.NoError(t, dbCheck(context.Background()))
	require.NoError(t, redisCheck(context.Background()))

	dbCheck, _, _ = app.BuildReadinessChecks(pingerStub{err: errors.New("down")}, nil, nil)
	require.Error(t, dbCheck(context.Background()))
}

type pingerStub struct{ err error }

func (p pingerStub) Ping(context.Context) error { return p.err }

type pingResult struct{ err error }

func (p pingResult) Err() error { return p.err }

type redisStub struct{ err error }

func (r redisStub) Ping(context.Context) app.RedisPingResult { return pingResult{err: r.err} }
