package ghost

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"deployassist/pkg/platform/sentinel"
	txcontext "deployassist/pkg/platform/tx"
)

// PostgresStore persists ghost candidates in the ghost_accounts table. The
// review fields are absent from the upsert's update list, so the
// review-preservation rule is enforced by the statement shape, not by
// read-modify-write.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a postgres-backed candidate store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Upsert(ctx context.Context, candidate Candidate) error {
	if candidate.HasReviewState() {
		return fmt.Errorf("computed upsert carries review state for %s: %w",
			candidate.AccountID, sentinel.ErrReviewProtected)
	}

	query := `
		INSERT INTO ghost_accounts (
			account_id, account_name, total_expired_products,
			latest_expiry_date, is_reviewed, notes, last_checked
		)
		VALUES ($1, $2, $3, $4, FALSE, '', $5)
		ON CONFLICT (account_id) DO UPDATE SET
			account_name = EXCLUDED.account_name,
			total_expired_products = EXCLUDED.total_expired_products,
			latest_expiry_date = EXCLUDED.latest_expiry_date,
			last_checked = EXCLUDED.last_checked
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		candidate.AccountID,
		candidate.AccountName,
		candidate.TotalExpiredProducts,
		candidate.LatestExpiryDate,
		candidate.LastChecked,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("ghost upsert race for %s: %w", candidate.AccountID, sentinel.ErrConflict)
		}
		return fmt.Errorf("upsert ghost candidate: %w", err)
	}
	return nil
}

const candidateColumns = `
	account_id, account_name, total_expired_products, latest_expiry_date,
	is_reviewed, reviewed_by, reviewed_at, notes, last_checked
`

func (s *PostgresStore) Get(ctx context.Context, accountID string) (*Candidate, error) {
	query := `SELECT` + candidateColumns + `FROM ghost_accounts WHERE account_id = $1`

	row := s.execer(ctx).QueryRowContext(ctx, query, accountID)
	candidate, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ghost candidate %s: %w", accountID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query ghost candidate: %w", err)
	}
	return candidate, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Candidate, int, error) {
	where := `WHERE ($1::boolean IS NULL OR is_reviewed = $1)
		AND ($2 = '' OR account_name ILIKE '%' || $2 || '%')`

	var reviewed any
	if filter.Reviewed != nil {
		reviewed = *filter.Reviewed
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM ghost_accounts ` + where
	if err := s.execer(ctx).QueryRowContext(ctx, countQuery, reviewed, filter.AccountName).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ghost candidates: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT` + candidateColumns + `FROM ghost_accounts ` + where + `
		ORDER BY latest_expiry_date, account_id
		LIMIT $3 OFFSET $4`

	rows, err := s.execer(ctx).QueryContext(ctx, query, reviewed, filter.AccountName, limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query ghost candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ghost candidate: %w", err)
		}
		candidates = append(candidates, *candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate ghost candidates: %w", err)
	}
	return candidates, total, nil
}

func (s *PostgresStore) MarkReviewed(ctx context.Context, accountID, reviewer, notes string, at time.Time) error {
	query := `
		UPDATE ghost_accounts
		SET is_reviewed = TRUE, reviewed_by = $2, reviewed_at = $3, notes = $4
		WHERE account_id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, accountID, reviewer, at, notes)
	if err != nil {
		return fmt.Errorf("mark ghost candidate reviewed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark ghost candidate reviewed: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ghost candidate %s: %w", accountID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, accountID string) error {
	_, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM ghost_accounts WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("remove ghost candidate: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*Candidate, error) {
	var (
		c          Candidate
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
	)
	err := row.Scan(
		&c.AccountID,
		&c.AccountName,
		&c.TotalExpiredProducts,
		&c.LatestExpiryDate,
		&c.IsReviewed,
		&reviewedBy,
		&reviewedAt,
		&c.Notes,
		&c.LastChecked,
	)
	if err != nil {
		return nil, err
	}
	c.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		c.ReviewedAt = &t
	}
	return &c, nil
}
