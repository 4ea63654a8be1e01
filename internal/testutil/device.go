package testutil

import (
	"fmt"

	"usnwatch/internal/usn"
)

// readOutcome is one scripted Read result.
type readOutcome struct {
	buf []byte
	n   uint32
	err error
}

// FakeDevice implements usn.Device with scripted outcomes, and counts
// every call so tests can assert on exactly which operations were issued.
type FakeDevice struct {
	Info     usn.JournalInfo
	QueryErr error

	reads []readOutcome

	Queries int
	Reads   int
	Reopens int
	Closes  int

	// ReopenErr makes Reopen fail.
	ReopenErr error
}

// NewFakeDevice creates a FakeDevice reporting the given journal metadata.
func NewFakeDevice(info usn.JournalInfo) *FakeDevice {
	return &FakeDevice{Info: info}
}

// QueueReadBuffer scripts a successful read returning the given buffer.
func (d *FakeDevice) QueueReadBuffer(buf []byte, n uint32) {
	d.reads = append(d.reads, readOutcome{buf: buf, n: n})
}

// QueueReadError scripts a failing read.
func (d *FakeDevice) QueueReadError(err error) {
	d.reads = append(d.reads, readOutcome{err: err})
}

func (d *FakeDevice) Query() (usn.JournalInfo, error) {
	d.Queries++
	if d.QueryErr != nil {
		return usn.JournalInfo{}, d.QueryErr
	}
	return d.Info, nil
}

func (d *FakeDevice) Read(startUsn int64, reasonMask uint32, buf []byte) (uint32, error) {
	d.Reads++
	if len(d.reads) == 0 {
		// Nothing scripted: behave like an idle journal.
		return 0, nil
	}

	next := d.reads[0]
	d.reads = d.reads[1:]
	if next.err != nil {
		return 0, next.err
	}
	if int(next.n) > len(buf) {
		return 0, fmt.Errorf("scripted buffer of %d bytes exceeds read buffer of %d", next.n, len(buf))
	}
	copy(buf, next.buf[:next.n])
	return next.n, nil
}

func (d *FakeDevice) Reopen() error {
	d.Reopens++
	return d.ReopenErr
}

func (d *FakeDevice) Close() error {
	d.Closes++
	return nil
}
