package collector

import (
	"time"

	"usnwatch/internal/usn"
)

// BatchReader reads incremental record batches from one volume's change
// journal. The NTFS implementation is usn.Reader; other platforms' native
// change-notification mechanisms can satisfy the same contract.
//
// ReadNextBatch returns the records at or after startUsn, capped at
// maxRecords, together with the cursor to resume from. On failure the
// returned cursor equals startUsn, so the caller can retry the same
// position later. Rotation recovery happens inside the implementation: a
// rotated-away cursor yields zero records and the journal's lowest valid
// position as the new cursor, with no error.
type BatchReader interface {
	ReadNextBatch(startUsn int64, maxRecords int) ([]usn.RawRecord, int64, error)
	Close() error
}

// StateStore persists per-volume cursors across process restarts.
type StateStore interface {
	// Load returns the persisted cursor map. A missing or unreadable
	// store is a cold start, not an error: implementations return an
	// empty map.
	Load() (map[string]int64, error)

	// Save persists the cursor map with the cycle timestamp.
	Save(positions map[string]int64, at time.Time) error

	// Reset discards all persisted cursors.
	Reset() error
}

// Recorder is the downstream hot-tier collaborator. It accepts a batch of
// normalized activities and returns one storage identifier per activity.
// Resolving file reference numbers to stable entity identities is the
// recorder's responsibility, not the collector's.
type Recorder interface {
	RecordBatch(activities []*Activity) ([]string, error)

	// PurgeExpired removes activities whose retention has lapsed as of now.
	// Returns the number of rows removed.
	PurgeExpired(now time.Time) (int64, error)

	Close() error
}
