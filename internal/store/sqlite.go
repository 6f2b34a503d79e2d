package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/procureflow/agent/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			run_id TEXT,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			intent_name TEXT NOT NULL,
			slots TEXT NOT NULL,
			requested_at DATETIME NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME,
			error TEXT,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_conversation ON runs(conversation_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS step_events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step_index INTEGER NOT NULL,
			plan_size INTEGER NOT NULL,
			step_name TEXT NOT NULL,
			outcome TEXT NOT NULL,
			fatal INTEGER NOT NULL DEFAULT 0,
			detail TEXT,
			emitted_at DATETIME NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendTurn appends a turn, creating the conversation row on first use.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *domain.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (conversation_id, created_at) VALUES (?, ?)`,
		turn.ConversationID, turn.CreatedAt); err != nil {
		return err
	}
	var runID any
	if turn.RunID != "" {
		runID = turn.RunID
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (turn_id, conversation_id, run_id, role, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.ConversationID, runID, turn.Role, turn.Text, turn.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetTurns returns a conversation's turns oldest first. A positive limit
// keeps the most recent turns, so bounded reads never cut off the tail of the
// conversation the resolver counts clarification rounds from.
func (s *SQLiteStore) GetTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	query := `SELECT turn_id, conversation_id, run_id, role, text, created_at FROM turns
		WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `SELECT turn_id, conversation_id, run_id, role, text, created_at FROM turns
			WHERE conversation_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var runID sql.NullString
		if err := rows.Scan(&t.TurnID, &t.ConversationID, &runID, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, err
		}
		if runID.Valid {
			t.RunID = runID.String
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
			turns[i], turns[j] = turns[j], turns[i]
		}
	}
	return turns, nil
}

// CreateRun persists a new run record. A duplicate run id fails with
// domain.ErrDuplicateRun.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	slots, err := json.Marshal(run.Request.Slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (conversation_id, created_at) VALUES (?, ?)`,
		run.ConversationID, run.StartedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, conversation_id, intent_name, slots, requested_at, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.ConversationID, run.Request.IntentName, string(slots),
		run.Request.RequestedAt, run.Status, run.StartedAt); err != nil {
		if isDuplicateKeyErr(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateRun, run.RunID)
		}
		return err
	}
	return tx.Commit()
}

// GetRun returns a run by id, or nil when it does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return scanRun(s.db.QueryRowContext(ctx,
		`SELECT run_id, conversation_id, intent_name, slots, requested_at, status, started_at, finished_at, error
		FROM runs WHERE run_id = ?`, runID))
}

// ListRuns returns the runs spawned by a conversation, oldest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, conversationID string) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, conversation_id, intent_name, slots, requested_at, status, started_at, finished_at, error
		FROM runs WHERE conversation_id = ? ORDER BY started_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var slots string
	var finishedAt sql.NullTime
	var errData sql.NullString
	err := row.Scan(&run.RunID, &run.ConversationID, &run.Request.IntentName, &slots,
		&run.Request.RequestedAt, &run.Status, &run.StartedAt, &finishedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(slots), &run.Request.Slots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slots: %w", err)
	}
	run.Request.ConversationID = run.ConversationID
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if errData.Valid {
		run.Error = json.RawMessage(errData.String)
	}
	return &run, nil
}

// UpdateRunStatus advances a run's status following the run state machine.
// Terminal statuses stamp finished_at and record the error payload.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, errData json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current domain.RunStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, runID).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	if err != nil {
		return err
	}
	if !domain.CanTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
	}

	if status.Terminal() {
		var errStr any
		if len(errData) > 0 {
			errStr = string(errData)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE run_id = ?`,
			status, time.Now().UTC(), errStr, runID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE runs SET status = ? WHERE run_id = ?`, status, runID)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// AppendStepEvent appends the next event of a run's execution log. The
// sequence must be exactly previous+1; anything else fails with
// domain.ErrOutOfOrderSequence. Appends to one run have a single writer, so
// the check guards a programming error rather than a race.
func (s *SQLiteStore) AppendStepEvent(ctx context.Context, event *domain.StepEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var last int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM step_events WHERE run_id = ?`, event.RunID).Scan(&last); err != nil {
		return err
	}
	if event.Seq != last+1 {
		return fmt.Errorf("%w: run %s got seq %d, want %d", domain.ErrOutOfOrderSequence, event.RunID, event.Seq, last+1)
	}

	var detail any
	if len(event.Detail) > 0 {
		detail = string(event.Detail)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO step_events (run_id, seq, step_index, plan_size, step_name, outcome, fatal, detail, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RunID, event.Seq, event.StepIndex, event.PlanSize, event.StepName,
		event.Outcome, event.Fatal, detail, event.EmittedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// ListStepEvents returns a run's events with seq > sinceSeq, in order.
func (s *SQLiteStore) ListStepEvents(ctx context.Context, runID string, sinceSeq int64) ([]domain.StepEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, step_index, plan_size, step_name, outcome, fatal, detail, emitted_at
		FROM step_events WHERE run_id = ? AND seq > ? ORDER BY seq ASC`, runID, sinceSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.StepEvent
	for rows.Next() {
		var ev domain.StepEvent
		var detail sql.NullString
		if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.StepIndex, &ev.PlanSize, &ev.StepName,
			&ev.Outcome, &ev.Fatal, &detail, &ev.EmittedAt); err != nil {
			return nil, err
		}
		if detail.Valid {
			ev.Detail = json.RawMessage(detail.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func isDuplicateKeyErr(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
