package testutil

import "usnwatch/internal/usn"

// batch is one scripted ReadNextBatch result.
type batch struct {
	records []usn.RawRecord
	next    int64
	err     error
}

// FakeReader implements the collector's batch-read contract with scripted
// batches, for orchestrator tests that don't care about journal I/O.
type FakeReader struct {
	batches []batch
	Closed  bool

	// StartUsns records the cursor passed to each ReadNextBatch call.
	StartUsns []int64
}

func NewFakeReader() *FakeReader { return &FakeReader{} }

// QueueBatch scripts a successful read of the given records, resuming at next.
func (r *FakeReader) QueueBatch(records []usn.RawRecord, next int64) {
	r.batches = append(r.batches, batch{records: records, next: next})
}

// QueueError scripts a failing read.
func (r *FakeReader) QueueError(err error) {
	r.batches = append(r.batches, batch{err: err})
}

func (r *FakeReader) ReadNextBatch(startUsn int64, maxRecords int) ([]usn.RawRecord, int64, error) {
	r.StartUsns = append(r.StartUsns, startUsn)

	if len(r.batches) == 0 {
		return nil, startUsn, nil
	}

	b := r.batches[0]
	r.batches = r.batches[1:]
	if b.err != nil {
		return nil, startUsn, b.err
	}

	records := b.records
	if maxRecords > 0 && len(records) > maxRecords {
		records = records[:maxRecords]
	}
	return records, b.next, nil
}

func (r *FakeReader) Close() error {
	r.Closed = true
	return nil
}
