//go:build integration

package ghost_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"deployassist/internal/ghost"
	"deployassist/pkg/platform/sentinel"
	"deployassist/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *ghost.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = ghost.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "ghost_accounts")
	s.Require().NoError(err)
}

func testCandidate(accountID string, checked time.Time) ghost.Candidate {
	return ghost.Candidate{
		AccountID:            accountID,
		AccountName:          "Account " + accountID,
		TotalExpiredProducts: 2,
		LatestExpiryDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastChecked:          checked,
	}
}

func (s *PostgresStoreSuite) TestUpsertAndGet() {
	ctx := context.Background()
	checked := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Upsert(ctx, testCandidate("acme", checked)))

	candidate, err := s.store.Get(ctx, "acme")
	s.Require().NoError(err)
	s.Equal("Account acme", candidate.AccountName)
	s.Equal(2, candidate.TotalExpiredProducts)
	s.False(candidate.IsReviewed)
	s.True(candidate.LastChecked.Equal(checked))
}

func (s *PostgresStoreSuite) TestUpsertPreservesReviewState() {
	ctx := context.Background()
	checked := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Upsert(ctx, testCandidate("acme", checked)))

	reviewedAt := checked.Add(time.Minute)
	s.Require().NoError(s.store.MarkReviewed(ctx, "acme", "ops@example.com", "known lapse", reviewedAt))

	// A later run recomputes the candidate; the reviewer's sign-off survives.
	later := testCandidate("acme", checked.Add(time.Hour))
	later.TotalExpiredProducts = 3
	s.Require().NoError(s.store.Upsert(ctx, later))

	candidate, err := s.store.Get(ctx, "acme")
	s.Require().NoError(err)
	s.Equal(3, candidate.TotalExpiredProducts)
	s.True(candidate.LastChecked.Equal(checked.Add(time.Hour)))
	s.True(candidate.IsReviewed)
	s.Equal("ops@example.com", candidate.ReviewedBy)
	s.Equal("known lapse", candidate.Notes)
	s.Require().NotNil(candidate.ReviewedAt)
	s.True(candidate.ReviewedAt.Equal(reviewedAt))
}

func (s *PostgresStoreSuite) TestUpsertRejectsReviewState() {
	candidate := testCandidate("acme", time.Now())
	candidate.IsReviewed = true
	candidate.ReviewedBy = "ops@example.com"

	err := s.store.Upsert(context.Background(), candidate)
	s.ErrorIs(err, sentinel.ErrReviewProtected)
}

func (s *PostgresStoreSuite) TestMarkReviewedUnknownCandidate() {
	err := s.store.MarkReviewed(context.Background(), "missing", "ops@example.com", "", time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRemoveIsIdempotent() {
	ctx := context.Background()

	s.Require().NoError(s.store.Upsert(ctx, testCandidate("acme", time.Now())))
	s.Require().NoError(s.store.Remove(ctx, "acme"))
	s.Require().NoError(s.store.Remove(ctx, "acme"))

	_, err := s.store.Get(ctx, "acme")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListFiltersAndPages() {
	ctx := context.Background()
	checked := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"a1", "a2", "a3"} {
		s.Require().NoError(s.store.Upsert(ctx, testCandidate(id, checked)))
	}
	s.Require().NoError(s.store.MarkReviewed(ctx, "a2", "ops@example.com", "", checked))

	reviewed := false
	candidates, total, err := s.store.List(ctx, ghost.ListFilter{Reviewed: &reviewed})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Len(candidates, 2)

	candidates, total, err = s.store.List(ctx, ghost.ListFilter{AccountName: "a2"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(candidates, 1)
	s.Equal("a2", candidates[0].AccountID)

	candidates, total, err = s.store.List(ctx, ghost.ListFilter{Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Len(candidates, 1)
}
