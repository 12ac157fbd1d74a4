// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package etl

import (
	"fmt"
	"os"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
)

// StatusRow is one entry of a status report.
type StatusRow struct {
	ID       string
	Path     string
	OldPath  string
	Kind     string
	Class    string
	Mods     string
	Hash     string
	OldHash  string
	Warnings string
}

// ExportConfig configures RunExport.
type ExportConfig struct {
	// DuckDBPath is the output file; it is created if it doesn't exist.
	DuckDBPath string
	// Overwrite removes an existing output file first.
	Overwrite bool
	// Snapshot is the changeset the report was computed against.
	Snapshot string
	Rows     []StatusRow
	// LogsDB, when set, has its persisted logs exported too. It is read
	// only.
	LogsDB *db.DB
}

// ExportStats counts what RunExport wrote.
type ExportStats struct {
	Rows    int
	Logs    int
	Elapsed time.Duration
}

var levels = []string{"trace", "debug", "info", "warning", "error", "critical"}

// RunExport writes the status rows, and optionally the logs, into a DuckDB
// file. Tables are replaced on every export.
func RunExport(cfg ExportConfig) (ExportStats, error) {
	var stats ExportStats
	if cfg.DuckDBPath == "" {
		return stats, fmt.Errorf("DuckDBPath is required")
	}
	start := time.Now()

	if cfg.Overwrite {
		if err := os.Remove(cfg.DuckDBPath); err != nil && !os.IsNotExist(err) {
			return stats, fmt.Errorf("failed to remove existing DuckDB file: %w", err)
		}
	}

	duck, err := OpenDuckDB(cfg.DuckDBPath)
	if err != nil {
		return stats, err
	}
	defer duck.Close()

	if err := dropTables(duck); err != nil {
		return stats, err
	}
	if err := createTables(duck); err != nil {
		return stats, err
	}
	if stats.Rows, err = exportStatus(duck, cfg.Snapshot, cfg.Rows); err != nil {
		return stats, err
	}
	if cfg.LogsDB != nil {
		if stats.Logs, err = exportLogs(duck, cfg.LogsDB); err != nil {
			return stats, err
		}
	}
	if err := createIndexes(duck); err != nil {
		return stats, err
	}

	stats.Elapsed = time.Since(start)
	if logservice.LS != nil {
		_ = logservice.LS.Log(
			"info",
			fmt.Sprintf("Exported %d status rows and %d log entries in %v", stats.Rows, stats.Logs, stats.Elapsed.Round(time.Millisecond)),
			"etl",
			cfg.DuckDBPath,
		)
	}
	return stats, nil
}

func dropTables(duck *DuckDB) error {
	for _, table := range []string{"status", "logs"} {
		if _, err := duck.db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

func createTables(duck *DuckDB) error {
	statusDDL := `
		CREATE TABLE status (
			id VARCHAR PRIMARY KEY,
			snapshot VARCHAR,
			path VARCHAR,
			old_path VARCHAR,
			kind VARCHAR,
			class VARCHAR,
			mods VARCHAR,
			hash VARCHAR,
			old_hash VARCHAR,
			warnings VARCHAR,
			exported TIMESTAMP
		)
	`
	if _, err := duck.db.Exec(statusDDL); err != nil {
		return fmt.Errorf("failed to create status table: %w", err)
	}

	logsDDL := `
		CREATE TABLE logs (
			id VARCHAR PRIMARY KEY,
			timestamp TIMESTAMP,
			level VARCHAR,
			entity VARCHAR,
			entity_id VARCHAR,
			message VARCHAR,
			operation VARCHAR,
			run VARCHAR,
			seq INTEGER
		)
	`
	if _, err := duck.db.Exec(logsDDL); err != nil {
		return fmt.Errorf("failed to create logs table: %w", err)
	}
	return nil
}

func exportStatus(duck *DuckDB, snapshot string, rows []StatusRow) (int, error) {
	duck.mu.Lock()
	defer duck.mu.Unlock()

	appender, err := duck.appender("status")
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	for _, r := range rows {
		if err := appender.AppendRow(
			r.ID,
			snapshot,
			r.Path,
			r.OldPath,
			r.Kind,
			r.Class,
			r.Mods,
			r.Hash,
			r.OldHash,
			r.Warnings,
			now,
		); err != nil {
			appender.Close()
			return 0, fmt.Errorf("failed to append status row %s: %w", r.ID, err)
		}
	}
	if err := appender.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush status rows: %w", err)
	}
	return len(rows), nil
}

// exportLogs copies every persisted log level in chronological order
// within each level.
func exportLogs(duck *DuckDB, src *db.DB) (int, error) {
	duck.mu.Lock()
	defer duck.mu.Unlock()

	appender, err := duck.appender("logs")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, level := range levels {
		entries, err := src.ReadLogs(level, 0)
		if err != nil {
			appender.Close()
			return 0, fmt.Errorf("failed to read %s logs: %w", level, err)
		}
		for _, e := range entries {
			if err := appender.AppendRow(e.ID, e.Timestamp, e.Level, e.Entity, e.EntityID, e.Message, e.Operation, e.Run, int32(e.Seq)); err != nil {
				appender.Close()
				return 0, fmt.Errorf("failed to append log row: %w", err)
			}
			n++
		}
	}
	if err := appender.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush log rows: %w", err)
	}
	return n, nil
}

func createIndexes(duck *DuckDB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_status_class ON status(class)",
		"CREATE INDEX IF NOT EXISTS idx_status_path ON status(path)",
		"CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level)",
		"CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_logs_operation ON logs(operation)",
		"CREATE INDEX IF NOT EXISTS idx_logs_run ON logs(run)",
	}
	for _, idx := range indexes {
		if _, err := duck.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// CountByClass summarizes an exported status table.
func CountByClass(duckDBPath string) (map[string]int, error) {
	duck, err := OpenDuckDB(duckDBPath)
	if err != nil {
		return nil, err
	}
	defer duck.Close()

	rows, err := duck.db.Query("SELECT class, COUNT(*) FROM status GROUP BY class")
	if err != nil {
		return nil, fmt.Errorf("failed to query status: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		out[class] = n
	}
	return out, rows.Err()
}
