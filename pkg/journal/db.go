// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package journal keeps a sqlite record of every reconciliation that
// touched the disk and of each action it executed. After a failure past
// the parking step it is the place to look up what already happened.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// TableDef is implemented by every table definition in tables.go.
type TableDef interface {
	Name() string
	Schema() string
}

// DB is the journal database and its table registry.
type DB struct {
	conn   *sql.DB
	ctx    context.Context
	mu     sync.Mutex
	tables map[string]TableDef
	path   string
}

// Open opens (creating if needed) the journal at path and registers the
// journal tables.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=2000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	// One writer; sqlite serializes anyway.
	conn.SetMaxOpenConns(1)

	d := &DB{
		conn:   conn,
		ctx:    context.Background(),
		tables: make(map[string]TableDef),
		path:   path,
	}
	for _, def := range []TableDef{OperationsTable{}, ActionsTable{}} {
		if err := d.RegisterTable(def); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return d, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// RegisterTable creates the table if needed and records it.
func (d *DB) RegisterTable(def TableDef) error {
	if err := d.CreateTable(def.Name(), def.Schema()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", def.Name(), err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[def.Name()] = def
	return nil
}

// Tables returns the registered table names in sorted order.
func (d *DB) Tables() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.tables))
	for name := range d.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CreateTable ensures a table exists.
func (d *DB) CreateTable(name, schema string) error {
	_, err := d.conn.ExecContext(d.ctx, "CREATE TABLE IF NOT EXISTS "+name+" ("+schema+")")
	return err
}

// Query executes a SQL query and returns rows.
func (d *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return d.conn.QueryContext(d.ctx, query, args...)
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(query string, args ...any) error {
	_, err := d.conn.ExecContext(d.ctx, query, args...)
	return err
}

// Write inserts one row into a registered table; args are the values of
// every column in schema order.
func (d *DB) Write(table string, args ...any) error {
	d.mu.Lock()
	_, known := d.tables[table]
	d.mu.Unlock()
	if !known {
		return fmt.Errorf("table %s is not registered", table)
	}
	query := "INSERT INTO " + table + " VALUES " + buildPlaceholderGroup(len(args))
	res, err := d.conn.ExecContext(d.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("insert into %s affected no rows", table)
	}
	return nil
}

// Close closes the connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// buildPlaceholderGroup creates "(?, ?, ?)" etc.
func buildPlaceholderGroup(n int) string {
	if n <= 0 {
		return "()"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}
