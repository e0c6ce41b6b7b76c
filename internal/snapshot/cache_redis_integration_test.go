//go:build integration

package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"deployassist/internal/provisioning"
	"deployassist/internal/snapshot"
	"deployassist/pkg/testutil/containers"
)

type CachedStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	inner *countingStore
	store *snapshot.CachedStore
}

func TestCachedStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedStoreSuite))
}

func (s *CachedStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CachedStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.inner = &countingStore{Store: snapshot.NewInMemoryStore()}
	s.store = snapshot.NewCachedStore(s.inner, s.redis.Client, time.Minute, nil)
}

// countingStore counts reads that reach the inner store so tests can tell
// cache hits from misses.
type countingStore struct {
	snapshot.Store
	latestReads int
}

func (c *countingStore) LatestByRecordID(ctx context.Context, recordID string) (*provisioning.Record, error) {
	c.latestReads++
	return c.Store.LatestByRecordID(ctx, recordID)
}

func cachedEntry(recordID, status string) snapshot.Entry {
	return snapshot.Entry{
		ID:         uuid.New(),
		RecordID:   recordID,
		CapturedAt: time.Now().UTC(),
		Snapshot: provisioning.Record{
			ID:          recordID,
			AccountID:   "acme",
			Status:      status,
			RequestType: provisioning.RequestTypeNew,
		},
		ChangedFields: []string{snapshot.FieldStatus},
	}
}

func (s *CachedStoreSuite) TestApplyWarmsTheCache() {
	ctx := context.Background()

	s.Require().NoError(s.store.Apply(ctx, cachedEntry("R1", "Completed")))

	rec, err := s.store.LatestByRecordID(ctx, "R1")
	s.Require().NoError(err)
	s.Equal("Completed", rec.Status)
	s.Equal(0, s.inner.latestReads, "write-through should have warmed the cache")
}

func (s *CachedStoreSuite) TestMissFallsThroughThenCaches() {
	ctx := context.Background()

	// Populate the inner store directly so the cache is cold.
	s.Require().NoError(s.inner.Store.Apply(ctx, cachedEntry("R1", "Completed")))

	rec, err := s.store.LatestByRecordID(ctx, "R1")
	s.Require().NoError(err)
	s.Equal("Completed", rec.Status)
	s.Equal(1, s.inner.latestReads)

	_, err = s.store.LatestByRecordID(ctx, "R1")
	s.Require().NoError(err)
	s.Equal(1, s.inner.latestReads, "second read should be a cache hit")
}

func (s *CachedStoreSuite) TestCorruptCacheEntryIsDropped() {
	ctx := context.Background()

	s.Require().NoError(s.inner.Store.Apply(ctx, cachedEntry("R1", "Completed")))
	s.Require().NoError(s.redis.Client.Set(ctx, "deployassist:snapshot:latest:R1", "{not json", time.Minute).Err())

	rec, err := s.store.LatestByRecordID(ctx, "R1")
	s.Require().NoError(err)
	s.Equal("Completed", rec.Status)
	s.Equal(1, s.inner.latestReads)
}
