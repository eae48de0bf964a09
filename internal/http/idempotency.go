package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	IdempotencyHeader   = "Idempotency-Key"
	IdempotencyCacheTTL = 24 * time.Hour
	idempotencyLockTTL  = 10 * time.Second

	idempotencyKeyPrefix  = "usdqs:idempotency:"
	idempotencyLockPrefix = "usdqs:idempotency-lock:"
)

// CachedResponse is a finished command response kept for replay.
type CachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// IdempotencyCache stores command responses by idempotency key and guards
// keys that are still being processed.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (CachedResponse, bool, error)
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
	Store(ctx context.Context, key string, resp CachedResponse) error
}

type RedisIdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyCache(client *redis.Client) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{client: client, ttl: IdempotencyCacheTTL}
}

func (r *RedisIdempotencyCache) Get(ctx context.Context, key string) (CachedResponse, bool, error) {
	raw, err := r.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedResponse{}, false, nil
	}
	if err != nil {
		return CachedResponse{}, false, fmt.Errorf("get idempotency key: %w", err)
	}

	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return CachedResponse{}, false, fmt.Errorf("decode idempotency entry: %w", err)
	}
	return resp, true, nil
}

func (r *RedisIdempotencyCache) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyLockPrefix+key, "processing", idempotencyLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire idempotency lock: %w", err)
	}
	return ok, nil
}

func (r *RedisIdempotencyCache) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyLockPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency lock: %w", err)
	}
	return nil
}

func (r *RedisIdempotencyCache) Store(ctx context.Context, key string, resp CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := r.client.Set(ctx, idempotencyKeyPrefix+key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency entry: %w", err)
	}
	return nil
}

// bodyRecorder captures what a handler writes so it can be replayed.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// replayCached writes the stored response for key, if any, and reports
// whether the request has been answered.
func (h *Handler) replayCached(c *gin.Context, key string, log *logrus.Entry) bool {
	cached, ok, err := h.idempotencyCache.Get(c.Request.Context(), key)
	if err != nil {
		log.WithError(err).Error("idempotency lookup failed")
		abortWithError(c, http.StatusServiceUnavailable, kindPersistence, "idempotency store unavailable")
		return true
	}
	if !ok {
		return false
	}

	log.Debug("replaying cached response")
	c.Header("X-Idempotency-Hit", "true")
	c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
	c.Abort()
	return true
}

// idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the authenticated user and route. Requests without a
// key, or a handler without a cache, pass straight through.
func (h *Handler) idempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" || h.idempotencyCache == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scoped := currentUsername(c) + ":" + c.FullPath() + ":" + key
		log := h.logger.WithField("idempotency_key", key)

		if h.replayCached(c, scoped, log) {
			return
		}

		acquired, err := h.idempotencyCache.Acquire(ctx, scoped)
		if err != nil {
			log.WithError(err).Error("idempotency lock failed")
			abortWithError(c, http.StatusServiceUnavailable, kindPersistence, "idempotency store unavailable")
			return
		}
		if !acquired {
			abortWithError(c, http.StatusConflict, kindConflict, "a request with this idempotency key is in progress")
			return
		}
		// the lock must go even if the client disconnected
		defer func() {
			if err := h.idempotencyCache.Release(context.WithoutCancel(ctx), scoped); err != nil {
				log.WithError(err).Warn("release idempotency lock")
			}
		}()

		// the previous holder may have stored its response between our lookup and the lock
		if h.replayCached(c, scoped, log) {
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		resp := CachedResponse{Status: status, Body: rec.body.Bytes()}
		if err := h.idempotencyCache.Store(context.WithoutCancel(ctx), scoped, resp); err != nil {
			log.WithError(err).Warn("cache idempotent response")
		}
	}
}
