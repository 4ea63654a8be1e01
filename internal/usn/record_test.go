package usn_test

import (
	"encoding/binary"
	"testing"
	"time"

	"usnwatch/internal/testutil"
	"usnwatch/internal/usn"
)

func TestParseRecords(t *testing.T) {
	t.Run("decodes a single record", func(t *testing.T) {
		t.Parallel()

		ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
		buf, n := testutil.BuildReadBuffer(2048, testutil.RecordSpec{
			FRN:        0x2000000000a1,
			ParentFRN:  0x1000000000b2,
			Usn:        1024,
			Timestamp:  ts,
			Reason:     usn.ReasonFileCreate | usn.ReasonClose,
			Attributes: usn.AttrArchive,
			Name:       "report.docx",
		})

		records := usn.ParseRecords(buf, n, 100)
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}

		r := records[0]
		if r.FileRefNumber != 0x2000000000a1 {
			t.Errorf("FileRefNumber = %#x, want %#x", r.FileRefNumber, 0x2000000000a1)
		}
		if r.ParentRefNumber != 0x1000000000b2 {
			t.Errorf("ParentRefNumber = %#x, want %#x", r.ParentRefNumber, 0x1000000000b2)
		}
		if r.Usn != 1024 {
			t.Errorf("Usn = %d, want 1024", r.Usn)
		}
		if r.FileName != "report.docx" {
			t.Errorf("FileName = %q, want %q", r.FileName, "report.docx")
		}
		if !usn.FiletimeToTime(r.Timestamp).Equal(ts) {
			t.Errorf("Timestamp = %v, want %v", usn.FiletimeToTime(r.Timestamp), ts)
		}
		if r.Reason&usn.ReasonFileCreate == 0 {
			t.Error("expected FILE_CREATE reason bit")
		}
		if r.IsDirectory() {
			t.Error("expected IsDirectory = false")
		}
	})

	t.Run("decodes multiple records", func(t *testing.T) {
		t.Parallel()

		buf, n := testutil.BuildReadBuffer(4096,
			testutil.RecordSpec{Usn: 100, Reason: usn.ReasonFileCreate, Name: "a.txt"},
			testutil.RecordSpec{Usn: 200, Reason: usn.ReasonDataExtend, Name: "b.txt"},
			testutil.RecordSpec{Usn: 300, Reason: usn.ReasonFileDelete, Name: "c.txt"},
		)

		records := usn.ParseRecords(buf, n, 100)
		if len(records) != 3 {
			t.Fatalf("got %d records, want 3", len(records))
		}
		if records[1].FileName != "b.txt" {
			t.Errorf("records[1].FileName = %q, want %q", records[1].FileName, "b.txt")
		}
	})

	t.Run("honors maxRecords", func(t *testing.T) {
		t.Parallel()

		buf, n := testutil.BuildReadBuffer(4096,
			testutil.RecordSpec{Usn: 100, Name: "a"},
			testutil.RecordSpec{Usn: 200, Name: "b"},
			testutil.RecordSpec{Usn: 300, Name: "c"},
		)

		records := usn.ParseRecords(buf, n, 2)
		if len(records) != 2 {
			t.Fatalf("got %d records, want 2", len(records))
		}
	})

	t.Run("stops at zero length prefix", func(t *testing.T) {
		t.Parallel()

		buf, _ := testutil.BuildReadBuffer(4096, testutil.RecordSpec{Usn: 100, Name: "a"})
		// Zero-filled tail after the only record.
		buf = append(buf, make([]byte, 64)...)

		records := usn.ParseRecords(buf, uint32(len(buf)), 100)
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}
	})

	t.Run("record extending past bytesReturned yields zero records", func(t *testing.T) {
		t.Parallel()

		// A record that declares more bytes than the read returned is the
		// truncated end of a batch, never an error.
		rec := testutil.EncodeRecord(testutil.RecordSpec{Usn: 100, Name: "truncated"})
		binary.LittleEndian.PutUint32(rec[0:], uint32(len(rec)+512))

		buf := make([]byte, 8, 8+len(rec))
		binary.LittleEndian.PutUint64(buf, 2048)
		buf = append(buf, rec...)

		records := usn.ParseRecords(buf, uint32(len(buf)), 100)
		if len(records) != 0 {
			t.Fatalf("got %d records, want 0", len(records))
		}
	})

	t.Run("corrupt near-max length stops cleanly", func(t *testing.T) {
		t.Parallel()

		// A RecordLength close to 2^32 must not wrap the bounds arithmetic
		// into an out-of-range slice.
		rec := testutil.EncodeRecord(testutil.RecordSpec{Usn: 100, Name: "corrupt"})
		binary.LittleEndian.PutUint32(rec[0:], 0xFFFFFFF8)

		buf := make([]byte, 8, 8+len(rec))
		binary.LittleEndian.PutUint64(buf, 2048)
		buf = append(buf, rec...)

		records := usn.ParseRecords(buf, uint32(len(buf)), 100)
		if len(records) != 0 {
			t.Fatalf("got %d records, want 0", len(records))
		}
	})

	t.Run("never reads past bytesReturned", func(t *testing.T) {
		t.Parallel()

		buf, n := testutil.BuildReadBuffer(4096,
			testutil.RecordSpec{Usn: 100, Name: "kept"},
			testutil.RecordSpec{Usn: 200, Name: "cut"},
		)
		// Report only the first record as returned; the second is stale
		// buffer content.
		first := testutil.EncodeRecord(testutil.RecordSpec{Usn: 100, Name: "kept"})
		n = uint32(8 + len(first))

		records := usn.ParseRecords(buf, n, 100)
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}
		if records[0].FileName != "kept" {
			t.Errorf("FileName = %q, want %q", records[0].FileName, "kept")
		}
	})

	t.Run("malformed filename never aborts the batch", func(t *testing.T) {
		t.Parallel()

		rec := testutil.EncodeRecord(testutil.RecordSpec{Usn: 100, Name: "x"})
		// Point the filename past the end of the record.
		binary.LittleEndian.PutUint16(rec[58:], uint16(len(rec)))

		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, 2048)
		buf = append(buf, rec...)
		buf = append(buf, testutil.EncodeRecord(testutil.RecordSpec{Usn: 200, Name: "ok"})...)

		records := usn.ParseRecords(buf, uint32(len(buf)), 100)
		if len(records) != 2 {
			t.Fatalf("got %d records, want 2", len(records))
		}
		if records[0].FileName != "" {
			t.Errorf("records[0].FileName = %q, want empty", records[0].FileName)
		}
		if records[1].FileName != "ok" {
			t.Errorf("records[1].FileName = %q, want %q", records[1].FileName, "ok")
		}
	})

	t.Run("empty buffer yields zero records", func(t *testing.T) {
		t.Parallel()

		records := usn.ParseRecords(make([]byte, 8), 8, 100)
		if len(records) != 0 {
			t.Fatalf("got %d records, want 0", len(records))
		}
	})
}

func TestNextUSN(t *testing.T) {
	t.Parallel()

	buf, _ := testutil.BuildReadBuffer(123456)
	if got := usn.NextUSN(buf); got != 123456 {
		t.Errorf("NextUSN = %d, want 123456", got)
	}

	if got := usn.NextUSN([]byte{1, 2}); got != 0 {
		t.Errorf("NextUSN of short buffer = %d, want 0", got)
	}
}

func TestFiletimeConversion(t *testing.T) {
	t.Run("zero is the FILETIME epoch", func(t *testing.T) {
		t.Parallel()

		want := time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)
		if got := usn.FiletimeToTime(0); !got.Equal(want) {
			t.Errorf("FiletimeToTime(0) = %v, want %v", got, want)
		}
	})

	t.Run("round trip is within tick resolution", func(t *testing.T) {
		t.Parallel()

		now := time.Now().UTC()
		back := usn.FiletimeToTime(usn.TimeToFiletime(now))

		diff := now.Sub(back)
		if diff < 0 {
			diff = -diff
		}
		if diff >= 100*time.Nanosecond {
			t.Errorf("round trip drifted by %v", diff)
		}
		if back.Location() != time.UTC {
			t.Errorf("round trip lost UTC location: %v", back.Location())
		}
	})
}
