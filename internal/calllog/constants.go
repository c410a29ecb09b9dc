package calllog

import "time"

// BatchFlushThreshold is the number of buffered entries that triggers an
// immediate flush without waiting for the timer.
const BatchFlushThreshold = 100

// CleanupInterval is how often old entries are deleted.
const CleanupInterval = 1 * time.Hour

// tableName is the SQL table and MongoDB collection holding entries.
const tableName = "call_log"
