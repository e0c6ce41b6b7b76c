package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"deployassist/internal/provisioning"
	"deployassist/pkg/platform/sentinel"
	txcontext "deployassist/pkg/platform/tx"
)

// PostgresStore persists the ledger in audit_entries and the projection in
// record_snapshots. Apply runs both writes in one transaction so the
// append-only guarantee and the projection stay consistent.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a postgres-backed snapshot store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Apply(ctx context.Context, entry Entry) error {
	return txcontext.RunInTx(ctx, s.db, func(ctx context.Context) error {
		if err := s.appendEntry(ctx, entry); err != nil {
			return err
		}
		return s.saveLatest(ctx, entry)
	})
}

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

func (s *PostgresStore) appendEntry(ctx context.Context, entry Entry) error {
	snapshotJSON, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	var warningsJSON []byte
	if len(entry.ParseWarnings) > 0 {
		if warningsJSON, err = json.Marshal(entry.ParseWarnings); err != nil {
			return fmt.Errorf("marshal parse warnings: %w", err)
		}
	}
	var rawJSON []byte
	if entry.RawPayload != nil {
		if rawJSON, err = json.Marshal(entry.RawPayload); err != nil {
			return fmt.Errorf("marshal raw payload: %w", err)
		}
	}

	query := `
		INSERT INTO audit_entries (
			id, record_id, captured_at, fields_snapshot,
			changed_fields, parse_warnings, raw_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.RecordID,
		entry.CapturedAt,
		snapshotJSON,
		pq.Array(entry.ChangedFields),
		nullableJSON(warningsJSON),
		nullableJSON(rawJSON),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("ledger row for %s at %s exists: %w",
				entry.RecordID, entry.CapturedAt, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) saveLatest(ctx context.Context, entry Entry) error {
	snapshotJSON, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	rec := entry.Snapshot
	query := `
		INSERT INTO record_snapshots (
			record_id, account_id, account_name, status, request_type,
			created_at, last_modified_at, captured_at, snapshot
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (record_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			account_name = EXCLUDED.account_name,
			status = EXCLUDED.status,
			request_type = EXCLUDED.request_type,
			created_at = EXCLUDED.created_at,
			last_modified_at = EXCLUDED.last_modified_at,
			captured_at = EXCLUDED.captured_at,
			snapshot = EXCLUDED.snapshot
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		rec.ID,
		rec.AccountID,
		rec.AccountName,
		rec.Status,
		string(rec.RequestType),
		rec.CreatedAt,
		rec.LastModifiedAt,
		entry.CapturedAt,
		snapshotJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert record snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestByRecordID(ctx context.Context, recordID string) (*provisioning.Record, error) {
	query := `SELECT snapshot FROM record_snapshots WHERE record_id = $1`

	var snapshotJSON []byte
	err := s.execer(ctx).QueryRowContext(ctx, query, recordID).Scan(&snapshotJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query record snapshot: %w", err)
	}

	var rec provisioning.Record
	if err := json.Unmarshal(snapshotJSON, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record snapshot: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) LatestSnapshots(ctx context.Context) ([]provisioning.Record, error) {
	query := `SELECT snapshot FROM record_snapshots ORDER BY record_id`

	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query record snapshots: %w", err)
	}
	defer rows.Close()

	var records []provisioning.Record
	for rows.Next() {
		var snapshotJSON []byte
		if err := rows.Scan(&snapshotJSON); err != nil {
			return nil, fmt.Errorf("scan record snapshot: %w", err)
		}
		var rec provisioning.Record
		if err := json.Unmarshal(snapshotJSON, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record snapshot: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record snapshots: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) EntriesByRecordID(ctx context.Context, recordID string) ([]Entry, error) {
	query := `
		SELECT id, record_id, captured_at, fields_snapshot,
			   changed_fields, parse_warnings, raw_payload
		FROM audit_entries
		WHERE record_id = $1
		ORDER BY captured_at DESC
	`

	rows, err := s.execer(ctx).QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry        Entry
			snapshotJSON []byte
			warningsJSON []byte
			rawJSON      []byte
		)
		err := rows.Scan(
			&entry.ID,
			&entry.RecordID,
			&entry.CapturedAt,
			&snapshotJSON,
			pq.Array(&entry.ChangedFields),
			&warningsJSON,
			&rawJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(snapshotJSON, &entry.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal entry snapshot: %w", err)
		}
		if len(warningsJSON) > 0 {
			if err := json.Unmarshal(warningsJSON, &entry.ParseWarnings); err != nil {
				return nil, fmt.Errorf("unmarshal entry warnings: %w", err)
			}
		}
		if len(rawJSON) > 0 {
			if err := json.Unmarshal(rawJSON, &entry.RawPayload); err != nil {
				return nil, fmt.Errorf("unmarshal entry raw payload: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
