// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/reconcile"
	"github.com/google/uuid"
)

// Operation is one row of the operations table.
type Operation struct {
	ID       string
	Kind     string
	Root     string
	Parents  []string
	Target   string
	Planned  int
	Started  time.Time
	Finished *time.Time
	Status   string
	Error    string
}

// Entry is one row of the actions table.
type Entry struct {
	Seq      int
	Kind     string
	EntryID  string
	From     string
	To       string
	Outcome  string
	Error    string
	Executed time.Time
}

// Recorder journals the actions of one plan. It satisfies
// reconcile.Recorder.
type Recorder struct {
	db   *DB
	id   string
	plan *reconcile.Plan
	now  func() time.Time
}

// Begin writes the operation row for plan and returns its recorder.
// target is the goal changeset of an update, empty for a revert.
func (d *DB) Begin(plan *reconcile.Plan, root string, parents []string, target string) (*Recorder, error) {
	r := &Recorder{db: d, id: uuid.New().String(), plan: plan, now: time.Now}
	err := d.Write(OperationsTable{}.Name(),
		r.id,
		plan.Operation,
		root,
		strings.Join(parents, ","),
		nullable(target),
		len(plan.Actions),
		r.now().UTC(),
		nil,
		"Running",
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to journal %s: %w", plan.Operation, err)
	}
	return r, nil
}

// ID returns the operation id.
func (r *Recorder) ID() string {
	return r.id
}

// Record writes one executed action.
func (r *Recorder) Record(seq int, a reconcile.Action, outcome error) error {
	status, msg := "ok", any(nil)
	if outcome != nil {
		status, msg = "failed", outcome.Error()
	}
	return r.db.Write(ActionsTable{}.Name(),
		r.id,
		seq,
		a.Kind.String(),
		nullable(a.ID),
		nullable(r.plan.Display(a.From)),
		nullable(r.plan.Display(a.To)),
		status,
		msg,
		r.now().UTC(),
	)
}

// Finish closes the operation row with the outcome of Apply.
func (r *Recorder) Finish(outcome error) error {
	status, msg := "Successful", any(nil)
	if outcome != nil {
		status, msg = "Failed", outcome.Error()
	}
	return r.db.Exec(
		"UPDATE operations SET finished = ?, status = ?, error = ? WHERE id = ?",
		r.now().UTC(), status, msg, r.id,
	)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Operations returns the most recent operations first. limit <= 0 means
// all of them.
func (d *DB) Operations(limit int) ([]Operation, error) {
	q := "SELECT id, kind, root, parents, target, planned, started, finished, status, error FROM operations ORDER BY started DESC, rowid DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := d.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		var (
			op              Operation
			parents         string
			target, errText sql.NullString
			finished        sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.Kind, &op.Root, &parents, &target, &op.Planned, &op.Started, &finished, &op.Status, &errText); err != nil {
			return nil, fmt.Errorf("failed to read operation: %w", err)
		}
		if parents != "" {
			op.Parents = strings.Split(parents, ",")
		}
		op.Target = target.String
		op.Error = errText.String
		if finished.Valid {
			t := finished.Time
			op.Finished = &t
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// Actions returns the journaled actions of one operation in order.
func (d *DB) Actions(operationID string) ([]Entry, error) {
	rows, err := d.Query(
		"SELECT seq, kind, entry_id, from_path, to_path, outcome, error, executed FROM actions WHERE operation_id = ? ORDER BY seq",
		operationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                          Entry
			entryID, from, to, errText sql.NullString
		)
		if err := rows.Scan(&e.Seq, &e.Kind, &entryID, &from, &to, &e.Outcome, &errText, &e.Executed); err != nil {
			return nil, fmt.Errorf("failed to read action: %w", err)
		}
		e.EntryID, e.From, e.To, e.Error = entryID.String, from.String, to.String, errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Unfinished returns the operations that never recorded an outcome.
func (d *DB) Unfinished() ([]Operation, error) {
	all, err := d.Operations(0)
	if err != nil {
		return nil, err
	}
	var out []Operation
	for _, op := range all {
		if op.Status == "Running" {
			out = append(out, op)
		}
	}
	return out, nil
}
