package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bencmd88/venicegate/internal/checks"
	"github.com/bencmd88/venicegate/internal/pipeline"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

// StepRow represents a row in the deploy_steps table.
type StepRow struct {
	ID        int64
	RunID     string
	Step      string
	Status    string
	Message   string
	Timestamp string
}

// CheckRow represents a row in the check_runs table.
type CheckRow struct {
	ID         int64
	RunID      string
	CheckName  string
	Status     string
	DurationMs int
	Message    string
	Details    string
	Timestamp  string
}

// ChangeRow represents a row in the spec_changes table.
type ChangeRow struct {
	ID         int64
	RunID      string
	OldVersion string
	NewVersion string
	Total      int
	Summary    string
	ChangeSet  string
	Timestamp  string
}

// RunSummary is the latest state of one run, derived from deploy_steps.
type RunSummary struct {
	RunID     string
	LastStep  string
	Status    string
	Message   string
	StartedAt string
	Timestamp string
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

func nowText() string {
	return time.Now().UTC().Format(timeLayout)
}

func timeText(t time.Time) string {
	if t.IsZero() {
		return nowText()
	}
	return t.UTC().Format(timeLayout)
}

// RecordStep inserts one pipeline log record.
func (d *DB) RecordStep(ctx context.Context, runID string, rec pipeline.Record) error {
	_, err := d.conn.ExecContext(ctx,
		d.rebind(`INSERT INTO deploy_steps (run_id, step, status, message, timestamp) VALUES (?, ?, ?, ?, ?)`),
		runID, rec.Step, rec.Status, rec.Message, timeText(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// RecordChecks inserts every result of a verdict in one transaction.
func (d *DB) RecordChecks(ctx context.Context, runID string, v *checks.Verdict) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := timeText(v.FinishedAt)
	stmt := d.rebind(`INSERT INTO check_runs (run_id, check_name, status, duration_ms, message, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, r := range v.Results {
		var details sql.NullString
		if r.Details != nil {
			data, err := json.Marshal(r.Details)
			if err != nil {
				return fmt.Errorf("encode %s details: %w", r.Check, err)
			}
			details = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, stmt, runID, r.Check, string(r.Status), r.DurationMs, r.Message, details, ts); err != nil {
			return fmt.Errorf("record check %s: %w", r.Check, err)
		}
	}
	return tx.Commit()
}

// RecordChangeSet stores a detected change set as JSON.
func (d *DB) RecordChangeSet(ctx context.Context, runID string, cs *snapshot.ChangeSet) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode change set: %w", err)
	}
	_, err = d.conn.ExecContext(ctx,
		d.rebind(`INSERT INTO spec_changes (run_id, old_version, new_version, total, summary, change_set, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		runID, cs.OldVersion, cs.NewVersion, cs.Total(), cs.Summary, string(data), timeText(cs.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("record change set: %w", err)
	}
	return nil
}

// Steps returns the log of one run in insertion order.
func (d *DB) Steps(ctx context.Context, runID string) ([]StepRow, error) {
	rows, err := d.conn.QueryContext(ctx,
		d.rebind(`SELECT id, run_id, step, status, message, timestamp FROM deploy_steps WHERE run_id = ? ORDER BY id ASC`),
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRow
	for rows.Next() {
		var s StepRow
		var msg sql.NullString
		if err := rows.Scan(&s.ID, &s.RunID, &s.Step, &s.Status, &msg, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		s.Message = msg.String
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// RecentRuns returns the latest step of the most recent runs, newest first.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := d.conn.QueryContext(ctx, d.rebind(`
		SELECT s.run_id, s.step, s.status, s.message, latest.started_at, s.timestamp
		FROM deploy_steps s
		INNER JOIN (
			SELECT run_id, MAX(id) AS max_id, MIN(timestamp) AS started_at
			FROM deploy_steps
			GROUP BY run_id
		) latest ON s.id = latest.max_id
		ORDER BY s.id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("get recent runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var msg sql.NullString
		if err := rows.Scan(&r.RunID, &r.LastStep, &r.Status, &msg, &r.StartedAt, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Message = msg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CheckRuns returns the check results recorded for one run.
func (d *DB) CheckRuns(ctx context.Context, runID string) ([]CheckRow, error) {
	return d.queryChecks(ctx,
		`SELECT id, run_id, check_name, status, duration_ms, message, details, timestamp
		 FROM check_runs WHERE run_id = ? ORDER BY id ASC`, runID)
}

// CheckHistory returns the most recent results of one check across runs, newest first.
func (d *DB) CheckHistory(ctx context.Context, checkName string, limit int) ([]CheckRow, error) {
	return d.queryChecks(ctx,
		`SELECT id, run_id, check_name, status, duration_ms, message, details, timestamp
		 FROM check_runs WHERE check_name = ? ORDER BY id DESC LIMIT ?`, checkName, limit)
}

// RecentChecks returns the most recent check results across all runs, newest first.
func (d *DB) RecentChecks(ctx context.Context, limit int) ([]CheckRow, error) {
	return d.queryChecks(ctx,
		`SELECT id, run_id, check_name, status, duration_ms, message, details, timestamp
		 FROM check_runs ORDER BY id DESC LIMIT ?`, limit)
}

func (d *DB) queryChecks(ctx context.Context, query string, args ...any) ([]CheckRow, error) {
	rows, err := d.conn.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("get check runs: %w", err)
	}
	defer rows.Close()

	var out []CheckRow
	for rows.Next() {
		var c CheckRow
		var duration sql.NullInt64
		var msg, details sql.NullString
		if err := rows.Scan(&c.ID, &c.RunID, &c.CheckName, &c.Status, &duration, &msg, &details, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan check run: %w", err)
		}
		c.DurationMs = int(duration.Int64)
		c.Message = msg.String
		c.Details = details.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Changes returns the most recent recorded change sets, newest first.
func (d *DB) Changes(ctx context.Context, limit int) ([]ChangeRow, error) {
	rows, err := d.conn.QueryContext(ctx, d.rebind(
		`SELECT id, run_id, old_version, new_version, total, summary, change_set, timestamp
		 FROM spec_changes ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("get changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRow
	for rows.Next() {
		var c ChangeRow
		var oldV, newV, summary sql.NullString
		if err := rows.Scan(&c.ID, &c.RunID, &oldV, &newV, &c.Total, &summary, &c.ChangeSet, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.OldVersion, c.NewVersion, c.Summary = oldV.String, newV.String, summary.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Decode unmarshals the stored change set.
func (c ChangeRow) Decode() (*snapshot.ChangeSet, error) {
	var cs snapshot.ChangeSet
	if err := json.Unmarshal([]byte(c.ChangeSet), &cs); err != nil {
		return nil, fmt.Errorf("decode change set %d: %w", c.ID, err)
	}
	return &cs, nil
}

// Compile-time check that DB can audit pipeline runs.
var _ pipeline.Recorder = (*DB)(nil)
