package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"burnbin/metrics"
	"burnbin/svc/util"
)

const (
	checkpointInterval = 5 * time.Minute
	truncateLogPages   = 1000
)

// StartWALMaintenance checkpoints the WAL on a ticker until quit closes,
// then runs one final checkpoint.
func StartWALMaintenance(db *sql.DB, quit <-chan struct{}) {
	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := performWALCheckpoint(db); err != nil {
				util.Error().Err(err).Msg("WAL checkpoint failed")
			}
		case <-quit:
			if err := performWALCheckpoint(db); err != nil {
				util.Error().Err(err).Msg("final WAL checkpoint failed")
			}
			return
		}
	}
}
func performWALCheckpoint(db *sql.DB) error {
	start := time.Now()
	var busyPages, logPages, checkpointed int
	err := db.QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busyPages, &logPages, &checkpointed)
	if err != nil {
		return fmt.Errorf("PASSIVE checkpoint failed: %w", err)
	}
	metrics.WALCheckpoints.WithLabelValues("passive").Inc()
	util.Debug().
		Int("busy", busyPages).
		Int("log", logPages).
		Int("checkpointed", checkpointed).
		Msg("PASSIVE checkpoint result")
	if logPages > truncateLogPages || busyPages > 0 {
		util.Info().Int("log", logPages).Msg("escalating to TRUNCATE checkpoint")
		err = db.QueryRow("PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busyPages, &logPages, &checkpointed)
		if err != nil {
			return fmt.Errorf("TRUNCATE checkpoint failed: %w", err)
		}
		metrics.WALCheckpoints.WithLabelValues("truncate").Inc()
	}
	if err := verifyIntegrity(db); err != nil {
		util.Error().Err(err).Msg("CRITICAL: database integrity check failed after checkpoint")
		return fmt.Errorf("integrity check failed: %w", err)
	}
	util.Debug().Dur("duration", time.Since(start)).Msg("WAL checkpoint completed")
	return nil
}
func verifyIntegrity(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity_check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check returned: %s", result)
	}
	return nil
}
