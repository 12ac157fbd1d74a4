// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package journal

// OperationsTable holds one row per journaled operation.
type OperationsTable struct{}

func (t OperationsTable) Name() string {
	return "operations"
}

func (t OperationsTable) Schema() string {
	return `
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK(kind IN ('revert', 'update')),
		root TEXT NOT NULL,
		parents TEXT NOT NULL,
		target TEXT,
		planned INTEGER NOT NULL,
		started TIMESTAMP NOT NULL,
		finished TIMESTAMP,
		status TEXT NOT NULL CHECK(status IN ('Running', 'Successful', 'Failed')),
		error TEXT
	`
}

/*
Note: paths in the actions table are relative to the working copy root.
Entries in the parking lot are written as "<parking>/name" so a failed
operation can be finished by hand from this table alone.
*/

// ActionsTable holds one row per executed action.
type ActionsTable struct{}

func (t ActionsTable) Name() string {
	return "actions"
}

func (t ActionsTable) Schema() string {
	return `
		operation_id TEXT NOT NULL REFERENCES operations(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		entry_id TEXT,
		from_path TEXT,
		to_path TEXT,
		outcome TEXT NOT NULL CHECK(outcome IN ('ok', 'failed')),
		error TEXT,
		executed TIMESTAMP NOT NULL,
		PRIMARY KEY (operation_id, seq)
	`
}
