package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/railway-berth-reservation/internal/config"
)

func newContext(method, target, route string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(route)
	return c, rec
}

func TestBuildRateKey(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/api/v1/tickets/cancel/3", "/api/v1/tickets/cancel/:ticketId")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}
	assert.Equal(t, "rl:ip:10.0.0.9", buildRateKey(cfg, c))

	cfg.KeyStrategy = "route"
	assert.Equal(t, "rl:route:POST /api/v1/tickets/cancel/:ticketId", buildRateKey(cfg, c))

	cfg.KeyStrategy = "whatever"
	assert.Equal(t, "rl:ip:10.0.0.9:route:POST /api/v1/tickets/cancel/:ticketId", buildRateKey(cfg, c))
}

func TestAsInt64(t *testing.T) {
	assert.Equal(t, int64(4), asInt64(int64(4)))
	assert.Equal(t, int64(7), asInt64("7"))
	assert.Equal(t, int64(2), asInt64(2.9))
	assert.Zero(t, asInt64(nil))
}

func TestCacheKeyIgnoresConcretePathAndHashesTail(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	a, _ := newContext(http.MethodGet, "/api/v1/tickets/available", "/api/v1/tickets/available")
	b, _ := newContext(http.MethodGet, "/api/v1/tickets/available?x=1", "/api/v1/tickets/available")
	c, _ := newContext(http.MethodGet, "/api/v1/tickets/booked", "/api/v1/tickets/booked")

	ka := cacheKeyFrom(cfg, a, 3)
	assert.Regexp(t, `^cache:3:[0-9a-f]{40}$`, ka)
	assert.Equal(t, ka, cacheKeyFrom(cfg, a, 3))
	assert.NotEqual(t, ka, cacheKeyFrom(cfg, a, 4))
	assert.NotEqual(t, ka, cacheKeyFrom(cfg, b, 3))
	assert.NotEqual(t, ka, cacheKeyFrom(cfg, c, 3))

	cfg.KeyStrategy = "route"
	assert.Equal(t, cacheKeyFrom(cfg, a, 0), cacheKeyFrom(cfg, b, 0))
}

func newMiniCache(t *testing.T) (*ResponseCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cfg := config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, KeyStrategy: "route_query", Prefix: "cache"}
	return NewResponseCache(cfg, rdb, nil), mr
}

func serveAvailable(t *testing.T, mw echo.MiddlewareFunc, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	c, rec := newContext(http.MethodGet, "/api/v1/tickets/available", "/api/v1/tickets/available")
	require.NoError(t, mw(h)(c))
	return rec
}

func TestResponseCacheHitAndInvalidate(t *testing.T) {
	rc, mr := newMiniCache(t)
	calls := 0
	h := func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}
	mw := rc.Middleware()

	rec := serveAvailable(t, mw, h)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Len(t, mr.Keys(), 1, "one entry stored")

	rec = serveAvailable(t, mw, h)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"calls":1}`, rec.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, calls)

	require.NoError(t, rc.Invalidate(context.Background()))
	gen, err := mr.Get("cache:gen")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	rec = serveAvailable(t, mw, h)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"calls":2}`, rec.Body.String())
	assert.Equal(t, 2, calls)

	rec = serveAvailable(t, mw, h)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"calls":2}`, rec.Body.String())
}

func TestResponseCacheDropsEntryWrittenAcrossInvalidation(t *testing.T) {
	rc, _ := newMiniCache(t)
	calls := 0
	h := func(c echo.Context) error {
		calls++
		if calls == 1 {
			// A booking commits while this read is still in flight.
			require.NoError(t, rc.Invalidate(context.Background()))
		}
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}
	mw := rc.Middleware()

	rec := serveAvailable(t, mw, h)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = serveAvailable(t, mw, h)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"), "entry from the old generation is not served")
	assert.JSONEq(t, `{"calls":2}`, rec.Body.String())
	assert.Equal(t, 2, calls)
}

func TestResponseCacheSkipsErrorsAndOtherMethods(t *testing.T) {
	rc, mr := newMiniCache(t)
	mw := rc.Middleware()

	failing := func(c echo.Context) error {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "busy"})
	}
	serveAvailable(t, mw, failing)
	rec := serveAvailable(t, mw, failing)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Empty(t, mr.Keys())

	c, rec := newContext(http.MethodPost, "/api/v1/tickets/book", "/api/v1/tickets/book")
	require.NoError(t, mw(func(c echo.Context) error { return c.NoContent(http.StatusCreated) })(c))
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, mr.Keys())
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok, "header length beyond payload")
}

func TestCaptureWriterAbandonsOversizedBodies(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	assert.False(t, cw.overflow)
	_, _ = cw.Write([]byte("def"))
	assert.True(t, cw.overflow)
	assert.Zero(t, cw.buf.Len())
	assert.Equal(t, "abcdef", rec.Body.String(), "client still receives the full body")
}

func TestDisabledComponentsPassThrough(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/x", "/x")
	h := func(c echo.Context) error { return c.String(http.StatusOK, "hi") }

	require.NoError(t, NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil)(h)(c))
	assert.Equal(t, "hi", rec.Body.String())

	rc := NewResponseCache(config.CacheConfig{Enabled: true}, nil, nil)
	c, rec = newContext(http.MethodGet, "/x", "/x")
	require.NoError(t, rc.Middleware()(h)(c))
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.NoError(t, rc.Invalidate(context.Background()))
}

func TestRedisFailuresFailOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	h := func(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"n": 1}) }

	limiter := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1, Prefix: "rl"}, rdb, nil)
	c, rec := newContext(http.MethodPost, "/book", "/book")
	require.NoError(t, limiter(h)(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	cache := NewResponseCache(config.CacheConfig{Enabled: true, Methods: []string{"GET"}, Prefix: "cache"}, rdb, nil)
	c, rec = newContext(http.MethodGet, "/available", "/available")
	require.NoError(t, cache.Middleware()(h)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"), "served without caching")
	assert.Error(t, cache.Invalidate(context.Background()))
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mw := RequestLogger(zap.New(core))

	c, _ := newContext(http.MethodGet, "/ok", "/ok")
	require.NoError(t, mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c))

	c, rec := newContext(http.MethodGet, "/missing", "/missing")
	require.NoError(t, mw(func(c echo.Context) error { return echo.ErrNotFound })(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "request completed", entries[0].Message)
	assert.Equal(t, "client error", entries[1].Message)
	assert.EqualValues(t, http.StatusNotFound, entries[1].ContextMap()["status"])
}

