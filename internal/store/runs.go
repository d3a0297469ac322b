package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoRuns is returned by LatestRun when the log is empty.
var ErrNoRuns = errors.New("no runs recorded")

// Run is one logged reconciliation pass.
type Run struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	Counts     map[string]int `json:"counts"`
	Outcomes   []Outcome      `json:"outcomes"`
}

// Outcome is the logged result of one record within a run.
type Outcome struct {
	Seq     int64  `json:"seq"`
	Name    string `json:"name"`
	Label   string `json:"label"`
	Outcome string `json:"outcome"`
}

// BeginRun opens a run. Runs are numbered by a logical sequence so the
// latest run does not depend on clock order.
func (s *Store) BeginRun(ctx context.Context, id string, started time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seq, started_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?)
	`, id, started.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("begin run %s: %w", id, err)
	}
	return nil
}

// RecordOutcome appends one record outcome to a run. The run must exist.
func (s *Store) RecordOutcome(ctx context.Context, runID string, o Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, seq, name, label, outcome)
		VALUES (?, ?, ?, ?, ?)
	`, runID, o.Seq, o.Name, o.Label, o.Outcome)
	if err != nil {
		return fmt.Errorf("record outcome %s/%d: %w", runID, o.Seq, err)
	}
	return nil
}

// FinishRun closes a run. A non-nil runErr is stored as the run's error.
func (s *Store) FinishRun(ctx context.Context, id string, finished time.Time, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, error = ? WHERE id = ?
	`, finished.UTC().Format(time.RFC3339Nano), msg, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: unknown run", id)
	}
	return nil
}

// LatestRun returns the most recently started run with its outcomes.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var (
		run              Run
		started          string
		finished, runErr sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, started_at, finished_at, error
		FROM runs
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Seq, &started, &finished, &runErr)
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrNoRuns
	}
	if err != nil {
		return run, fmt.Errorf("latest run: %w", err)
	}

	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return run, fmt.Errorf("latest run: started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return run, fmt.Errorf("latest run: finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	run.Error = runErr.String

	outcomes, err := s.readOutcomes(ctx, run.ID)
	if err != nil {
		return run, err
	}
	run.Outcomes = outcomes
	run.Counts = make(map[string]int)
	for _, o := range outcomes {
		run.Counts[o.Outcome]++
	}
	return run, nil
}

func (s *Store) readOutcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, name, label, outcome
		FROM outcomes
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []Outcome{}
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.Seq, &o.Name, &o.Label, &o.Outcome); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}
