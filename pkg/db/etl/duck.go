// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package etl exports working-copy status reports and persisted logs into
// DuckDB files for analysis with SQL.
package etl

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/marcboeker/go-duckdb"
)

// DuckDB wraps a DuckDB connection with mutex protection. The driver
// connection is kept for the Appender API.
type DuckDB struct {
	db        *sql.DB
	connector *duckdb.Connector
	conn      driver.Conn
	mu        sync.Mutex
	dbPath    string
}

// OpenDuckDB opens or creates a DuckDB database.
func OpenDuckDB(dbPath string) (*DuckDB, error) {
	connector, err := duckdb.NewConnector(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	conn, err := connector.Connect(context.Background())
	if err != nil {
		connector.Close()
		return nil, fmt.Errorf("failed to connect to DuckDB: %w", err)
	}
	// Both handles share the connector's database instance.
	return &DuckDB{
		db:        sql.OpenDB(connector),
		connector: connector,
		conn:      conn,
		dbPath:    dbPath,
	}, nil
}

// SQL returns the database/sql handle for queries.
func (d *DuckDB) SQL() *sql.DB {
	return d.db
}

// Path returns the database file path.
func (d *DuckDB) Path() string {
	return d.dbPath
}

// appender opens an appender on table. The caller holds d.mu.
func (d *DuckDB) appender(table string) (*duckdb.Appender, error) {
	a, err := duckdb.NewAppenderFromConn(d.conn, "", table)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s appender: %w", table, err)
	}
	return a, nil
}

// Close closes the DuckDB connection.
func (d *DuckDB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		d.conn = nil
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = append(errs, err)
		}
		d.db = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing DuckDB: %v", errs)
	}
	return nil
}
