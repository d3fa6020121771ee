package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	embedsql "github.com/JeffLepp/Hospital-Analytics-Warehouse/internal/sql"
)

// Run statuses recorded in etl_run_log.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// OpenRun inserts a running etl_run_log row and returns its id.
func OpenRun(ctx context.Context, pool *pgxpool.Pool, note string) (int64, error) {
	var runID int64
	if err := pool.QueryRow(ctx, embedsql.OpenRun, RunRunning, note).Scan(&runID); err != nil {
		return 0, fmt.Errorf("open run: %w", err)
	}
	return runID, nil
}

// CloseRun stamps finished_at and records the terminal status and note.
func CloseRun(ctx context.Context, pool *pgxpool.Pool, runID int64, status, notes string) error {
	if _, err := pool.Exec(ctx, embedsql.CloseRun, runID, status, notes); err != nil {
		return fmt.Errorf("close run %d: %w", runID, err)
	}
	return nil
}
