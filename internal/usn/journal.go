package usn

import (
	"errors"
	"fmt"
)

// DefaultBufferSize is the fixed read buffer size for journal reads. The
// buffer is not grown adaptively; a single oversized record surfaces as
// ErrBufferTooSmall and is a tuning problem, not a recoverable one.
const DefaultBufferSize = 4096

// ReasonMaskAll requests records for every reason bit.
const ReasonMaskAll uint32 = 0xFFFFFFFF

// Sentinel errors for classified journal failures. See also JournalError,
// which wraps the unclassified remainder with full diagnostics.
var (
	// ErrPermissionDenied: the process lacks the elevated privileges
	// required to open the raw volume device.
	ErrPermissionDenied = errors.New("permission denied opening volume (administrator privileges required)")

	// ErrVolumeUnavailable: the volume device path does not resolve.
	ErrVolumeUnavailable = errors.New("volume unavailable")

	// ErrBufferTooSmall: a journal record did not fit the fixed read buffer.
	ErrBufferTooSmall = errors.New("read buffer too small for journal record")

	// ErrJournalRotated: the requested USN has been discarded by journal
	// rotation. Recoverable: resume from LowestValidUsn.
	ErrJournalRotated = errors.New("journal entry deleted (journal rotated)")

	// ErrHandleStale: the volume handle went bad mid-use. Recoverable
	// exactly once per read by close+reopen.
	ErrHandleStale = errors.New("stale volume handle")

	// ErrUnsupportedPlatform: USN journals exist only on NTFS volumes
	// under Windows.
	ErrUnsupportedPlatform = errors.New("USN journal access is only supported on windows")
)

// JournalInfo is a snapshot of a volume's change journal metadata, as
// returned by a journal metadata query.
type JournalInfo struct {
	JournalID       uint64
	FirstUsn        int64
	NextUsn         int64
	LowestValidUsn  int64
	MaxUsn          int64
	MaximumSize     uint64
	AllocationDelta uint64
}

// JournalError carries full journal diagnostics for unclassified failures,
// so a fatal-for-cycle error can be logged with enough context to diagnose
// after the fact.
type JournalError struct {
	Volume       string
	Op           string
	RequestedUsn int64
	Info         JournalInfo
	Err          error
}

func (e *JournalError) Error() string {
	return fmt.Sprintf("%s %s (requested usn=%d, journal id=%d, first=%d, next=%d, lowest valid=%d): %v",
		e.Op, e.Volume, e.RequestedUsn, e.Info.JournalID, e.Info.FirstUsn, e.Info.NextUsn, e.Info.LowestValidUsn, e.Err)
}

func (e *JournalError) Unwrap() error { return e.Err }

// Device is the raw journal I/O surface for one volume: metadata queries
// and buffer reads against an exclusively owned OS handle. Implementations
// classify OS errors into the sentinel errors above. A Device may not be
// used concurrently.
type Device interface {
	// Query issues a journal metadata query and returns the current snapshot.
	Query() (JournalInfo, error)

	// Read issues a non-blocking journal read starting at startUsn into
	// buf and returns the byte count written. The first eight bytes of
	// buf encode the next USN position. A read with no pending entries
	// succeeds with bytesReturned == headerLength.
	Read(startUsn int64, reasonMask uint32, buf []byte) (uint32, error)

	// Reopen closes and reacquires the volume handle. Used once per read
	// to recover from ErrHandleStale.
	Reopen() error

	// Close releases the volume handle. Idempotent.
	Close() error
}
