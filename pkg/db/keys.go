// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package db

import (
	"fmt"
	"time"
)

// KeyTimestamp is the TIMESTAMPS key of a node id.
func KeyTimestamp(nodeID string) []byte {
	return []byte(nodeID)
}

// KeyLog places an entry of one operation run inside a level bucket.
// Format: {run_start_unix_nanos:020d}:{run_uuid}:{seq:08d}
func KeyLog(runStart time.Time, run string, seq int) []byte {
	return []byte(fmt.Sprintf("%020d:%s:%08d", runStart.UnixNano(), run, seq))
}
