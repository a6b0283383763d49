package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyKeyPrefix namespaces reservation idempotency records in Redis.
const IdempotencyKeyPrefix = "idem:reserve:"

type idempotencyStatus string

const (
	statusProcessing idempotencyStatus = "processing"
	statusCompleted  idempotencyStatus = "completed"
)

type idempotencyRecord struct {
	Status      idempotencyStatus `json:"status"`
	TicketID    string            `json:"ticket_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// RedisKV is the subset of *redis.Client the idempotency store uses.
type RedisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyRepo stores reservation results by client key. A key is
// "processing" for a short TTL while the first request runs, then
// "completed" with the ticket ID for the long TTL.
type IdempotencyRepo struct {
	rdb           RedisKV
	ttl           time.Duration
	processingTTL time.Duration
}

// NewIdempotencyRepo returns a Redis-backed store. Zero TTLs fall back to
// 24h for completed and 60s for processing records.
func NewIdempotencyRepo(rdb RedisKV, ttl, processingTTL time.Duration) *IdempotencyRepo {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if processingTTL <= 0 {
		processingTTL = 60 * time.Second
	}
	return &IdempotencyRepo{rdb: rdb, ttl: ttl, processingTTL: processingTTL}
}

// Begin claims key for the caller, or reports the state left by an
// earlier request with the same key.
func (r *IdempotencyRepo) Begin(ctx context.Context, key string) (string, bool, error) {
	redisKey := IdempotencyKeyPrefix + key
	body, err := json.Marshal(idempotencyRecord{Status: statusProcessing, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", false, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.rdb.SetNX(ctx, redisKey, body, r.processingTTL).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return "", true, nil
		}

		raw, err := r.rdb.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between SETNX and GET
		}
		if err != nil {
			return "", false, err
		}
		var rec idempotencyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return "", false, fmt.Errorf("decode idempotency record: %w", err)
		}
		if rec.Status == statusCompleted {
			return rec.TicketID, false, nil
		}
		return "", false, nil
	}
	return "", false, errors.New("idempotency key churned during begin")
}

// Complete stores the ticket a key produced.
func (r *IdempotencyRepo) Complete(ctx context.Context, key, ticketID string) error {
	now := time.Now().UTC()
	body, err := json.Marshal(idempotencyRecord{Status: statusCompleted, TicketID: ticketID, CreatedAt: now, CompletedAt: &now})
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, IdempotencyKeyPrefix+key, body, r.ttl).Err()
}

// Abandon forgets a key so the client may retry it.
func (r *IdempotencyRepo) Abandon(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, IdempotencyKeyPrefix+key).Err()
}
