package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/officer-sync/syncjob"
)

// Run is one row of the sync run history.
type Run struct {
	ID            string     `json:"id"`
	CorrelationID string     `json:"correlationId,omitempty"`
	WindowAfter   time.Time  `json:"windowAfter"`
	WindowBefore  time.Time  `json:"windowBefore"`
	MemberCount   int        `json:"memberCount"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
}

// RunStore records job lifecycle in sync_runs. It implements syncjob.RunRecorder.
type RunStore struct {
	DB *sql.DB
}

var _ syncjob.RunRecorder = (*RunStore)(nil)

// StartRun inserts a running row and returns its id.
func (s *RunStore) StartRun(ctx context.Context, info syncjob.RunInfo) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sync_runs (id, correlation_id, window_after, window_before, member_count, status, started_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NOW())`,
		id, info.CorrelationID, info.After, info.Before, info.MemberCount, syncjob.RunRunning)
	if err != nil {
		return "", fmt.Errorf("insert sync run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the final status of a run.
func (s *RunStore) FinishRun(ctx context.Context, id, status, errMsg string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sync_runs SET status = $2, error = NULLIF($3, ''), finished_at = NOW() WHERE id = $1`,
		id, status, errMsg)
	if err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sync run %s not found", id)
	}
	return nil
}

// RecentRuns lists up to limit runs, newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, COALESCE(correlation_id, ''), window_after, window_before, member_count, status,
		        COALESCE(error, ''), started_at, finished_at
		   FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.CorrelationID, &r.WindowAfter, &r.WindowBefore, &r.MemberCount,
			&r.Status, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneBefore deletes finished runs that started before cutoff.
func (s *RunStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM sync_runs WHERE started_at < $1 AND status <> $2`, cutoff, syncjob.RunRunning)
	if err != nil {
		return 0, fmt.Errorf("prune sync runs: %w", err)
	}
	return res.RowsAffected()
}

// MarkAbandoned fails runs still marked running, which can only be left over
// from a previous process. Call it once at startup.
func (s *RunStore) MarkAbandoned(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sync_runs SET status = $1, error = 'abandoned at shutdown', finished_at = NOW() WHERE status = $2`,
		syncjob.RunFailed, syncjob.RunRunning)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned runs: %w", err)
	}
	return res.RowsAffected()
}
