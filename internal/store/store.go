// Package store persists discovered session stats and per-day usage
// aggregates in a local SQLite database, so history survives across
// dashboard restarts and dead conversations remain visible.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pkt.systems/tabaret/internal/discovery"
	"pkt.systems/tabaret/schema"
)

var ErrNotFound = errors.New("not found")

// SessionRow is one persisted session.
type SessionRow struct {
	ID                  schema.SessionID
	Dir                 string
	ProjectName         string
	GitBranch           string
	Model               string
	AgentVersion        string
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	MessageCount        int
	ToolCallCount       int
	CostUSD             float64
	Status              schema.SessionStatus
	StartedAt           time.Time
	LastActivity        time.Time
	FirstSeenAt         time.Time
	UpdatedAt           time.Time
}

// DailyRow aggregates one calendar day (UTC, "2006-01-02").
type DailyRow struct {
	Day                 string
	SessionCount        int
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	MessageCount        int
	CostUSD             float64
	UpdatedAt           time.Time
}

type Store struct {
	db *sql.DB
}

// Open creates the database file if needed and brings the schema up to
// date.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// UpsertSession records the latest discovered state of a session. The
// first_seen_at column keeps its original value on conflict.
func (s *Store) UpsertSession(ctx context.Context, sess discovery.Session) error {
	now := ts(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(session_id, dir, project_name, git_branch, model, agent_version,
	input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens,
	message_count, tool_call_count, cost_usd, status,
	started_at, last_activity_at, first_seen_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	dir=excluded.dir,
	project_name=excluded.project_name,
	git_branch=excluded.git_branch,
	model=excluded.model,
	agent_version=excluded.agent_version,
	input_tokens=excluded.input_tokens,
	output_tokens=excluded.output_tokens,
	cache_read_tokens=excluded.cache_read_tokens,
	cache_creation_tokens=excluded.cache_creation_tokens,
	message_count=excluded.message_count,
	tool_call_count=excluded.tool_call_count,
	cost_usd=excluded.cost_usd,
	status=excluded.status,
	started_at=excluded.started_at,
	last_activity_at=excluded.last_activity_at,
	updated_at=excluded.updated_at
`, string(sess.ID), sess.Dir, sess.ProjectName, sess.GitBranch, sess.Model, sess.Version,
		sess.InputTokens, sess.OutputTokens, sess.CacheReadTokens, sess.CacheCreationTokens,
		sess.MessageCount, sess.ToolCallCount, sess.EstimatedCostUSD(), string(sess.Status),
		nullableTS(sess.StartedAt), nullableTS(sess.LastActivity), now, now)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Sessions lists all persisted sessions, newest activity first.
func (s *Store) Sessions(ctx context.Context) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, dir, project_name, git_branch, model, agent_version,
	input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens,
	message_count, tool_call_count, cost_usd, status,
	started_at, last_activity_at, first_seen_at, updated_at
FROM sessions
ORDER BY last_activity_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []SessionRow
	for rows.Next() {
		row, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Session fetches one session by id, ErrNotFound when absent.
func (s *Store) Session(ctx context.Context, id schema.SessionID) (SessionRow, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, dir, project_name, git_branch, model, agent_version,
	input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens,
	message_count, tool_call_count, cost_usd, status,
	started_at, last_activity_at, first_seen_at, updated_at
FROM sessions
WHERE session_id = ?
`, string(id))
	out, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return out, err
}

// DeleteSession removes a session's history. Deleting an absent id is a
// no-op.
func (s *Store) DeleteSession(ctx context.Context, id schema.SessionID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RefreshDailyStats recomputes the aggregate row for day (UTC,
// "2006-01-02") from the sessions table.
func (s *Store) RefreshDailyStats(ctx context.Context, day string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO daily_stats(day, session_count, input_tokens, output_tokens,
	cache_read_tokens, cache_creation_tokens, message_count, cost_usd, updated_at)
SELECT ?, COUNT(*),
	COALESCE(SUM(input_tokens), 0),
	COALESCE(SUM(output_tokens), 0),
	COALESCE(SUM(cache_read_tokens), 0),
	COALESCE(SUM(cache_creation_tokens), 0),
	COALESCE(SUM(message_count), 0),
	COALESCE(SUM(cost_usd), 0),
	datetime('now')
FROM sessions
WHERE date(last_activity_at) = ?
ON CONFLICT(day) DO UPDATE SET
	session_count=excluded.session_count,
	input_tokens=excluded.input_tokens,
	output_tokens=excluded.output_tokens,
	cache_read_tokens=excluded.cache_read_tokens,
	cache_creation_tokens=excluded.cache_creation_tokens,
	message_count=excluded.message_count,
	cost_usd=excluded.cost_usd,
	updated_at=excluded.updated_at
`, day, day)
	if err != nil {
		return fmt.Errorf("refresh daily stats: %w", err)
	}
	return nil
}

// DailyStats fetches the aggregate for day, ErrNotFound when absent.
func (s *Store) DailyStats(ctx context.Context, day string) (DailyRow, error) {
	var (
		out       DailyRow
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT day, session_count, input_tokens, output_tokens,
	cache_read_tokens, cache_creation_tokens, message_count, cost_usd, updated_at
FROM daily_stats
WHERE day = ?
`, day).Scan(&out.Day, &out.SessionCount, &out.InputTokens, &out.OutputTokens,
		&out.CacheReadTokens, &out.CacheCreationTokens, &out.MessageCount, &out.CostUSD, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DailyRow{}, fmt.Errorf("%w: day %s", ErrNotFound, day)
	}
	if err != nil {
		return DailyRow{}, fmt.Errorf("daily stats: %w", err)
	}
	out.UpdatedAt = parseTS(updatedAt)
	return out, nil
}

// TotalCostUSD sums the estimated cost of every persisted session.
func (s *Store) TotalCostUSD(ctx context.Context) (float64, error) {
	var total float64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM sessions`).Scan(&total); err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRow, error) {
	var (
		out                             SessionRow
		id, status                      string
		startedAt, lastActivity         sql.NullString
		firstSeenAt, updatedAt          string
	)
	err := row.Scan(&id, &out.Dir, &out.ProjectName, &out.GitBranch, &out.Model, &out.AgentVersion,
		&out.InputTokens, &out.OutputTokens, &out.CacheReadTokens, &out.CacheCreationTokens,
		&out.MessageCount, &out.ToolCallCount, &out.CostUSD, &status,
		&startedAt, &lastActivity, &firstSeenAt, &updatedAt)
	if err != nil {
		return SessionRow{}, err
	}
	out.ID = schema.SessionID(id)
	out.Status = schema.SessionStatus(status)
	if startedAt.Valid {
		out.StartedAt = parseTS(startedAt.String)
	}
	if lastActivity.Valid {
		out.LastActivity = parseTS(lastActivity.String)
	}
	out.FirstSeenAt = parseTS(firstSeenAt)
	out.UpdatedAt = parseTS(updatedAt)
	return out, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullableTS(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return ts(t)
}

func parseTS(v string) time.Time {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
