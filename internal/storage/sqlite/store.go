// Package sqlite persists requests, audit entries, profiles and rate-limit
// violations in a single sqlite database. One writer, WAL mode; good for the
// single-node deployments this service runs as.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"dutybot/internal/audit"
	"dutybot/internal/moderation"
	"dutybot/internal/profile"
	"dutybot/internal/ratelimit"
	"dutybot/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

// Store implements the durable store interfaces of the audit, moderation,
// profile and ratelimit packages over one shared connection pool.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?%s", path, url.Values{
		"_pragma": []string{"journal_mode(WAL)", "busy_timeout(5000)", "synchronous(NORMAL)"},
	}.Encode())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// sqlite serializes writes anyway; a single connection avoids lock
	// contention errors under concurrent use.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRequest inserts the request's durable record.
func (s *Store) RecordRequest(ctx context.Context, req *moderation.Request) error {
	fields, err := json.Marshal(req.Fields)
	if err != nil {
		return fmt.Errorf("marshal request fields: %w", err)
	}
	evidence, err := json.Marshal(req.Evidence)
	if err != nil {
		return fmt.Errorf("marshal request evidence: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO requests (id, kind, submitter_id, submitter_display, fields, evidence, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, string(req.Kind), req.SubmitterID, req.SubmitterDisplay,
		string(fields), string(evidence), string(req.Status),
		req.SubmittedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert request %d: %w", req.ID, err)
	}
	return nil
}

// RecordDecision writes the decided fields onto the stored request.
func (s *Store) RecordDecision(ctx context.Context, req *moderation.Request) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = ?, decided_by = ?, decided_by_name = ?, decide_reason = ?, decided_at = ?
		WHERE id = ?`,
		string(req.Status), req.DecidedBy, req.DecidedByName, req.DecideReason,
		req.DecidedAt.UTC().Format(time.RFC3339Nano), req.ID,
	)
	if err != nil {
		return fmt.Errorf("update request %d: %w", req.ID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindRequest loads one request by id.
func (s *Store) FindRequest(ctx context.Context, id uint64) (*moderation.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, submitter_id, submitter_display, fields, evidence,
		       status, decided_by, decided_by_name, decide_reason, submitted_at, decided_at
		FROM requests WHERE id = ?`, id)

	var (
		req                    moderation.Request
		fields, evidence       string
		submittedAt, decidedAt string
	)
	err := row.Scan(&req.ID, &req.Kind, &req.SubmitterID, &req.SubmitterDisplay,
		&fields, &evidence, &req.Status, &req.DecidedBy, &req.DecidedByName,
		&req.DecideReason, &submittedAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan request %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(fields), &req.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal request %d fields: %w", id, err)
	}
	if err := json.Unmarshal([]byte(evidence), &req.Evidence); err != nil {
		return nil, fmt.Errorf("unmarshal request %d evidence: %w", id, err)
	}
	if req.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt); err != nil {
		return nil, fmt.Errorf("parse request %d submitted_at: %w", id, err)
	}
	if decidedAt != "" {
		if req.DecidedAt, err = time.Parse(time.RFC3339Nano, decidedAt); err != nil {
			return nil, fmt.Errorf("parse request %d decided_at: %w", id, err)
		}
	}
	return &req, nil
}

// MaxRequestID returns the highest stored request id, so the in-memory
// ledger can continue the monotonic sequence across restarts.
func (s *Store) MaxRequestID(ctx context.Context) (uint64, error) {
	var maxID uint64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM requests`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("max request id: %w", err)
	}
	return maxID, nil
}

// Append writes one audit entry.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, target_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ActorID, string(entry.Action), entry.TargetID, entry.Details,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByActor returns the actor's audit trail in insertion order.
func (s *Store) ListByActor(ctx context.Context, actorID int64) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, target_id, details, created_at
		FROM audit_log WHERE actor_id = ? ORDER BY created_at`, actorID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e  audit.Entry
			ts string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.TargetID, &e.Details, &ts); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetProfile loads one member profile.
func (s *Store) GetProfile(ctx context.Context, actorID int64) (*profile.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT actor_id, in_game_name, rank, department, updated_at
		FROM profiles WHERE actor_id = ?`, actorID)

	var (
		p  profile.Profile
		ts string
	)
	err := row.Scan(&p.ActorID, &p.InGameName, &p.Rank, &p.Department, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile %d: %w", actorID, err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("parse profile %d updated_at: %w", actorID, err)
	}
	return &p, nil
}

// PutProfile inserts or fully replaces the member's profile row.
func (s *Store) PutProfile(ctx context.Context, p *profile.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (actor_id, in_game_name, rank, department, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (actor_id) DO UPDATE SET
			in_game_name = excluded.in_game_name,
			rank = excluded.rank,
			department = excluded.department,
			updated_at = excluded.updated_at`,
		p.ActorID, p.InGameName, p.Rank, p.Department,
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert profile %d: %w", p.ActorID, err)
	}
	return nil
}

// RecordViolation appends one rate-limit violation.
func (s *Store) RecordViolation(ctx context.Context, v ratelimit.Violation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO violations (actor_id, kind, retry_after_ms, occurred_at)
		VALUES (?, ?, ?, ?)`,
		v.ActorID, string(v.Kind), v.RetryAfter.Milliseconds(),
		v.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record violation: %w", err)
	}
	return nil
}
