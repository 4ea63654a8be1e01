package usn

import (
	"encoding/binary"
	"time"
	"unicode/utf16"
)

// USN_RECORD_V2 field offsets, relative to the start of the record.
const (
	offRecordLength    = 0  // u32
	offMajorVersion    = 4  // u16
	offMinorVersion    = 6  // u16
	offFileRefNumber   = 8  // u64
	offParentRefNumber = 16 // u64
	offUsn             = 24 // i64
	offTimestamp       = 32 // i64, Windows FILETIME
	offReason          = 40 // u32
	offSourceInfo      = 44 // u32
	offSecurityID      = 48 // u32
	offFileAttributes  = 52 // u32
	offFileNameLength  = 56 // u16, bytes
	offFileNameOffset  = 58 // u16, from record start
)

// minRecordLength is the size of the fixed portion of a USN_RECORD_V2,
// before the filename tail.
const minRecordLength = 60

// headerLength is the size of the next-USN header at the start of every
// FSCTL_READ_USN_JOURNAL output buffer.
const headerLength = 8

// RawRecord is one decoded change journal record. It is ephemeral: records
// are produced while parsing a single read buffer and are not retained by
// this package.
type RawRecord struct {
	RecordLength    uint32
	MajorVersion    uint16
	MinorVersion    uint16
	FileRefNumber   uint64
	ParentRefNumber uint64
	Usn             int64
	Timestamp       int64 // Windows FILETIME (100ns ticks since 1601-01-01 UTC)
	Reason          uint32
	SourceInfo      uint32
	SecurityID      uint32
	FileAttributes  uint32
	FileName        string
}

// IsDirectory reports whether the record's subject is a directory.
func (r *RawRecord) IsDirectory() bool {
	return r.FileAttributes&AttrDirectory != 0
}

// ReasonNames returns the symbolic names of the record's reason bits.
func (r *RawRecord) ReasonNames() []string {
	return DecodeReasonFlags(r.Reason)
}

// filetimeEpochDelta is the number of 100ns ticks between the FILETIME
// epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochDelta = 116444736000000000

// FiletimeToTime converts a Windows FILETIME to a UTC time.Time.
func FiletimeToTime(ft int64) time.Time {
	ticks := ft - filetimeEpochDelta
	secs := ticks / 10000000
	nsecs := (ticks % 10000000) * 100
	return time.Unix(secs, nsecs).UTC()
}

// TimeToFiletime converts a time.Time to a Windows FILETIME.
func TimeToFiletime(t time.Time) int64 {
	return t.UnixNano()/100 + filetimeEpochDelta
}

// NextUSN reads the next-USN header from a journal read buffer. The first
// eight bytes of every FSCTL_READ_USN_JOURNAL output encode the USN to
// resume from on the following read.
func NextUSN(buf []byte) int64 {
	if len(buf) < headerLength {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(buf[:headerLength]))
}

// ParseRecords decodes the records in a journal read buffer, starting past
// the leading next-USN header. Parsing stops cleanly (no error) at the
// first zero-length record, at any record that would extend past
// bytesReturned, at bytesReturned itself, or after maxRecords records,
// whichever comes first. A truncated trailing record is the normal end of
// a batch, not corruption.
func ParseRecords(buf []byte, bytesReturned uint32, maxRecords int) []RawRecord {
	if int(bytesReturned) > len(buf) {
		bytesReturned = uint32(len(buf))
	}

	var records []RawRecord
	offset := uint32(headerLength)

	for offset+4 <= bytesReturned {
		if maxRecords > 0 && len(records) >= maxRecords {
			break
		}

		recLen := binary.LittleEndian.Uint32(buf[offset:])
		if recLen == 0 || recLen < minRecordLength {
			break
		}
		// recLen comes off the wire; compare without uint32 wraparound.
		if recLen > bytesReturned-offset {
			break
		}

		rec := buf[offset : offset+recLen]
		records = append(records, RawRecord{
			RecordLength:    recLen,
			MajorVersion:    binary.LittleEndian.Uint16(rec[offMajorVersion:]),
			MinorVersion:    binary.LittleEndian.Uint16(rec[offMinorVersion:]),
			FileRefNumber:   binary.LittleEndian.Uint64(rec[offFileRefNumber:]),
			ParentRefNumber: binary.LittleEndian.Uint64(rec[offParentRefNumber:]),
			Usn:             int64(binary.LittleEndian.Uint64(rec[offUsn:])),
			Timestamp:       int64(binary.LittleEndian.Uint64(rec[offTimestamp:])),
			Reason:          binary.LittleEndian.Uint32(rec[offReason:]),
			SourceInfo:      binary.LittleEndian.Uint32(rec[offSourceInfo:]),
			SecurityID:      binary.LittleEndian.Uint32(rec[offSecurityID:]),
			FileAttributes:  binary.LittleEndian.Uint32(rec[offFileAttributes:]),
			FileName:        decodeFileName(rec),
		})

		offset += recLen
	}

	return records
}

// decodeFileName extracts the UTF-16LE filename tail from a full record
// slice. A malformed offset/length never aborts the batch: out-of-range
// names yield "", and invalid UTF-16 units decode to the Unicode
// replacement character.
func decodeFileName(rec []byte) string {
	nameLen := binary.LittleEndian.Uint16(rec[offFileNameLength:])
	nameOff := binary.LittleEndian.Uint16(rec[offFileNameOffset:])

	start := int(nameOff)
	end := start + int(nameLen)
	if start < minRecordLength || end > len(rec) || nameLen%2 != 0 {
		return ""
	}

	units := make([]uint16, nameLen/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(rec[start+2*i:])
	}
	// utf16.Decode substitutes U+FFFD for unpaired surrogates.
	return string(utf16.Decode(units))
}
