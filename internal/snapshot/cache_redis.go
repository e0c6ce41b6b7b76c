package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"deployassist/internal/provisioning"
)

const latestKeyPrefix = "deployassist:snapshot:latest:"

// CachedStore wraps a Store with a Redis read-through cache for the hot
// LatestByRecordID lookup the capture path performs once per record per
// sweep. Cache misses and Redis failures fall back to the inner store; the
// cache is never authoritative.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore decorates inner with a Redis cache.
func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

// Apply writes through to the inner store first, then refreshes the cache.
// A failed cache write only costs a future miss.
func (s *CachedStore) Apply(ctx context.Context, entry Entry) error {
	if err := s.inner.Apply(ctx, entry); err != nil {
		return err
	}
	s.cacheLatest(ctx, entry.Snapshot)
	return nil
}

func (s *CachedStore) LatestByRecordID(ctx context.Context, recordID string) (*provisioning.Record, error) {
	cached, err := s.client.Get(ctx, latestKeyPrefix+recordID).Bytes()
	if err == nil {
		var rec provisioning.Record
		if err := json.Unmarshal(cached, &rec); err == nil {
			return &rec, nil
		}
		// Corrupt cache entry, drop it and fall through.
		s.client.Del(ctx, latestKeyPrefix+recordID)
	} else if !errors.Is(err, redis.Nil) && s.logger != nil {
		s.logger.WarnContext(ctx, "snapshot cache read failed", "record_id", recordID, "error", err)
	}

	rec, err := s.inner.LatestByRecordID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	s.cacheLatest(ctx, *rec)
	return rec, nil
}

func (s *CachedStore) LatestSnapshots(ctx context.Context) ([]provisioning.Record, error) {
	return s.inner.LatestSnapshots(ctx)
}

func (s *CachedStore) EntriesByRecordID(ctx context.Context, recordID string) ([]Entry, error) {
	return s.inner.EntriesByRecordID(ctx, recordID)
}

func (s *CachedStore) cacheLatest(ctx context.Context, rec provisioning.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, latestKeyPrefix+rec.ID, payload, s.ttl).Err(); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "snapshot cache write failed",
			"record_id", rec.ID,
			"error", fmt.Errorf("set latest: %w", err),
		)
	}
}
