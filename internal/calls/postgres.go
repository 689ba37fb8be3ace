package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists call records. Assumed schema:
//
//	call_records (
//	  id, external_call_id, order_id, user_id,
//	  status, outcome, language, voice_id, transcript,
//	  duration, retry_count,
//	  scheduled_at, started_at, ended_at,
//	  metadata JSONB, created_at, updated_at
//	)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
id, COALESCE(external_call_id, ''), order_id, user_id,
status, COALESCE(outcome, ''), language, voice_id, COALESCE(transcript, ''),
duration, retry_count,
scheduled_at, started_at, ended_at,
metadata, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, rec CallRecord) error {
	meta, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO call_records (
  id, external_call_id, order_id, user_id,
  status, outcome, language, voice_id, transcript,
  duration, retry_count,
  scheduled_at, started_at, ended_at,
  metadata, created_at, updated_at
) VALUES (
  $1, NULLIF($2, ''), $3, $4,
  $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''),
  $10, $11,
  $12, $13, $14,
  $15, $16, $17
)
`
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.ExternalCallID, rec.OrderID, rec.UserID,
		rec.Status, rec.Outcome, rec.Language, rec.VoiceID, rec.Transcript,
		rec.DurationSeconds, rec.RetryCount,
		rec.ScheduledAt, rec.StartedAt, rec.EndedAt,
		meta, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateByID(ctx context.Context, id string, p Patch) (CallRecord, error) {
	sets := make([]string, 0, 10)
	args := make([]any, 0, 10)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.Outcome != nil {
		add("outcome", *p.Outcome)
	}
	if p.ExternalCallID != nil {
		add("external_call_id", *p.ExternalCallID)
	}
	if p.Transcript != nil {
		add("transcript", *p.Transcript)
	}
	if p.Duration != nil {
		add("duration", *p.Duration)
	}
	if p.RetryCount != nil {
		add("retry_count", *p.RetryCount)
	}
	if p.StartedAt != nil {
		add("started_at", *p.StartedAt)
	}
	if p.EndedAt != nil {
		add("ended_at", *p.EndedAt)
	}
	if p.Metadata != nil {
		meta, err := encodeMetadata(p.Metadata)
		if err != nil {
			return CallRecord{}, err
		}
		// Merge, never replace: earlier provider payloads stay in place.
		args = append(args, meta)
		sets = append(sets, fmt.Sprintf("metadata = COALESCE(metadata, '{}'::jsonb) || $%d", len(args)))
	}
	at := p.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	add("updated_at", at)

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE call_records SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), recordColumns)

	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrRecordNotFound
		}
		return CallRecord{}, err
	}
	return rec, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (CallRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records WHERE id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrRecordNotFound
		}
		return CallRecord{}, err
	}
	return rec, nil
}

func (s *PostgresStore) FindByExternalCallID(ctx context.Context, externalID string) (CallRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records WHERE external_call_id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrRecordNotFound
		}
		return CallRecord{}, err
	}
	return rec, nil
}

func (s *PostgresStore) FindActiveByOrderID(ctx context.Context, orderID string) (CallRecord, bool, error) {
	q := `SELECT ` + recordColumns + `
FROM call_records
WHERE order_id = $1
  AND status IN ('initiated', 'in_progress')
ORDER BY created_at DESC
LIMIT 1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, false, nil
		}
		return CallRecord{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]CallRecord, error) {
	var (
		conds []string
		args  []any
	)
	where := func(col, op string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s %s $%d", col, op, len(args)))
	}

	if f.UserID != "" {
		where("user_id", "=", f.UserID)
	}
	if f.OrderID != "" {
		where("order_id", "=", f.OrderID)
	}
	if f.Status != "" {
		where("status", "=", f.Status)
	}
	if f.Outcome != "" {
		where("outcome", "=", f.Outcome)
	}
	if f.Language != "" {
		where("language", "=", f.Language)
	}
	if !f.From.IsZero() {
		where("created_at", ">=", f.From)
	}
	if !f.To.IsZero() {
		where("created_at", "<=", f.To)
	}

	q := `SELECT ` + recordColumns + ` FROM call_records`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListStale(ctx context.Context, cutoff time.Time) ([]CallRecord, error) {
	q := `SELECT ` + recordColumns + `
FROM call_records
WHERE status IN ('initiated', 'in_progress')
  AND updated_at < $1
ORDER BY updated_at ASC`
	rows, err := s.db.QueryContext(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (CallRecord, error) {
	var (
		rec       CallRecord
		metaJSON  []byte
		scheduled sql.NullTime
		started   sql.NullTime
		ended     sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.ExternalCallID, &rec.OrderID, &rec.UserID,
		&rec.Status, &rec.Outcome, &rec.Language, &rec.VoiceID, &rec.Transcript,
		&rec.DurationSeconds, &rec.RetryCount,
		&scheduled, &started, &ended,
		&metaJSON, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return CallRecord{}, err
	}
	if scheduled.Valid {
		t := scheduled.Time
		rec.ScheduledAt = &t
	}
	if started.Valid {
		t := started.Time
		rec.StartedAt = &t
	}
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
			return CallRecord{}, fmt.Errorf("calls: decode metadata for %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func encodeMetadata(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("calls: encode metadata: %w", err)
	}
	return b, nil
}
