package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/redis"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client, err := redis.New(context.Background(), config.RedisConfig{Address: srv.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func payRequest(body, key string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req.WithContext(WithIdentity(req.Context(), userID, enums.UserRoleCustomer))
}

func countingHandler(status int, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *calls)
	})
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store, _ := newRedis(t)
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(countingHandler(http.StatusCreated, &calls))
	userID := uuid.New()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, payRequest(`{"amount":"60.00"}`, "key-1", userID))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, payRequest(`{"amount":"60.00"}`, "key-1", userID))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get(replayedHeader))
	assert.Empty(t, first.Header().Get(replayedHeader))

	// same key, different caller
	handler.ServeHTTP(httptest.NewRecorder(), payRequest(`{"amount":"60.00"}`, "key-1", uuid.New()))
	assert.Equal(t, 2, calls)
}

func TestIdempotencyKeyExpires(t *testing.T) {
	store, srv := newRedis(t)
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(countingHandler(http.StatusOK, &calls))
	userID := uuid.New()

	handler.ServeHTTP(httptest.NewRecorder(), payRequest(`{}`, "key-ttl", userID))
	srv.FastForward(2 * time.Hour)
	handler.ServeHTTP(httptest.NewRecorder(), payRequest(`{}`, "key-ttl", userID))
	assert.Equal(t, 2, calls)
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store, _ := newRedis(t)
	calls := 0
	handler := Idempotency(store, 0, nil)(countingHandler(http.StatusOK, &calls))
	userID := uuid.New()

	handler.ServeHTTP(httptest.NewRecorder(), payRequest(`{"amount":"60.00"}`, "key-1", userID))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, payRequest(`{"amount":"40.00"}`, "key-1", userID))

	assert.Equal(t, http.StatusConflict, resp.Code)
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), envelope.Error.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyPassThrough(t *testing.T) {
	store, srv := newRedis(t)
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(countingHandler(http.StatusServiceUnavailable, &calls))
	userID := uuid.New()

	handler.ServeHTTP(httptest.NewRecorder(), payRequest(`{}`, "", userID))
	handler.ServeHTTP(httptest.NewRecorder(), payRequest(`{}`, "", userID))
	handler.ServeHTTP(httptest.NewRecorder(), payRequest(`{}`, "key-5xx", userID))
	handler.ServeHTTP(httptest.NewRecorder(), payRequest(`{}`, "key-5xx", userID))

	assert.Equal(t, 4, calls, "keyless requests and server errors always reach the handler")
	assert.Empty(t, srv.Keys())

	long := httptest.NewRecorder()
	handler.ServeHTTP(long, payRequest(`{}`, strings.Repeat("k", maxIdempotencyKey+1), userID))
	assert.Equal(t, http.StatusBadRequest, long.Code)
}

func TestIdempotencyStoreDown(t *testing.T) {
	store, srv := newRedis(t)
	srv.Close()
	handler := Idempotency(store, time.Hour, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, payRequest(`{}`, "key-1", uuid.New()))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
