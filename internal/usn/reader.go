package usn

import (
	"errors"
	"fmt"
)

// readerState tracks where the reader is in its rotation recovery cycle.
type readerState int

const (
	stateNormal readerState = iota
	stateRecovering
)

// Reader reads journal record batches from a Device and recovers from
// journal rotation. It is the NTFS implementation of the batch-read
// contract consumed by the collector; it performs at most one device read
// and at most one recovery per ReadNextBatch call.
//
// A Reader owns its Device for the lifetime of the Reader and may not be
// used concurrently.
type Reader struct {
	volume string
	device Device
	buf    []byte
	state  readerState

	// info is the journal metadata snapshot from open or the most recent
	// recovery re-query.
	info JournalInfo
}

// NewReader opens the journal on the given volume device and snapshots its
// metadata. The caller must Close the reader on every exit path.
func NewReader(volume string, device Device) (*Reader, error) {
	info, err := device.Query()
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("querying journal on %s: %w", volume, err)
	}

	return &Reader{
		volume: volume,
		device: device,
		buf:    make([]byte, DefaultBufferSize),
		state:  stateNormal,
		info:   info,
	}, nil
}

// Info returns the most recent journal metadata snapshot.
func (r *Reader) Info() JournalInfo {
	return r.info
}

// ReadNextBatch reads the next batch of records at startUsn and returns the
// parsed records along with the USN to resume from.
//
// Rotation is handled internally: if startUsn has already been discarded
// (detected either before the read, when startUsn < FirstUsn, or by the
// read itself failing with ErrJournalRotated), the reader re-queries the
// journal and returns zero records with the oldest readable USN as the
// resume position. The entries between the old cursor and that
// position are gone; that is a property of the bounded journal, not a
// failure.
//
// A stale handle is retried exactly once after a reopen. Any other failure
// is returned with the cursor unchanged (next == startUsn), so the caller
// can retry the same position on its next cycle.
func (r *Reader) ReadNextBatch(startUsn int64, maxRecords int) ([]RawRecord, int64, error) {
	// Fast path: don't issue a read that is guaranteed to fail with
	// "journal entry deleted". A reader still in the recovering state
	// from a failed recovery last cycle goes straight back to recovery.
	if r.state == stateRecovering || startUsn < r.info.FirstUsn {
		r.state = stateRecovering
		next, err := r.recover(startUsn)
		if err != nil {
			return nil, startUsn, err
		}
		return nil, next, nil
	}

	n, err := r.device.Read(startUsn, ReasonMaskAll, r.buf)
	if errors.Is(err, ErrHandleStale) {
		if reopenErr := r.device.Reopen(); reopenErr != nil {
			return nil, startUsn, fmt.Errorf("reopening stale handle on %s: %w", r.volume, reopenErr)
		}
		n, err = r.device.Read(startUsn, ReasonMaskAll, r.buf)
	}

	switch {
	case err == nil:
		// fall through to parse
	case errors.Is(err, ErrJournalRotated):
		r.state = stateRecovering
		next, recErr := r.recover(startUsn)
		if recErr != nil {
			return nil, startUsn, recErr
		}
		return nil, next, nil
	default:
		return nil, startUsn, &JournalError{
			Volume:       r.volume,
			Op:           "reading journal",
			RequestedUsn: startUsn,
			Info:         r.info,
			Err:          err,
		}
	}

	if n < headerLength {
		// Nothing available; hold position.
		return nil, startUsn, nil
	}

	records := ParseRecords(r.buf, n, maxRecords)
	next := NextUSN(r.buf)

	// When the journal has no entries past startUsn the header still
	// echoes a valid resume position; never step the cursor backwards.
	if next < startUsn {
		next = startUsn
	}

	// Cap the resume position at the last record actually consumed, so
	// entries past a maxRecords cut are picked up on the next read.
	if maxRecords > 0 && len(records) == maxRecords {
		next = records[len(records)-1].Usn + int64(records[len(records)-1].RecordLength)
	}

	return records, next, nil
}

// recover re-queries journal metadata and resets to the oldest readable
// USN.
// At most one recovery is attempted per read; if the re-query itself
// fails the reader stays in the recovering state and the caller keeps its
// previous cursor (journal reads are non-destructive, so retrying the same
// position next cycle is safe).
func (r *Reader) recover(requestedUsn int64) (int64, error) {
	info, err := r.device.Query()
	if err != nil {
		return 0, &JournalError{
			Volume:       r.volume,
			Op:           "re-querying journal after rotation",
			RequestedUsn: requestedUsn,
			Info:         r.info,
			Err:          err,
		}
	}

	r.info = info
	r.state = stateNormal

	// A journal that rotated without being recreated keeps LowestValidUsn
	// at 0 while FirstUsn advances; resuming below FirstUsn would just
	// trigger recovery again next cycle. Resume from whichever bound is
	// actually readable.
	next := info.LowestValidUsn
	if info.FirstUsn > next {
		next = info.FirstUsn
	}
	return next, nil
}

// Close releases the underlying device handle.
func (r *Reader) Close() error {
	return r.device.Close()
}
