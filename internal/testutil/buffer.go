// Package testutil provides hand-written fakes and builders for testing
// the collector without a real NTFS volume.
package testutil

import (
	"encoding/binary"
	"time"
	"unicode/utf16"

	"usnwatch/internal/usn"
)

// RecordSpec describes one journal record for BuildReadBuffer.
type RecordSpec struct {
	FRN        uint64
	ParentFRN  uint64
	Usn        int64
	Timestamp  time.Time
	Reason     uint32
	Attributes uint32
	Name       string
}

// BuildReadBuffer encodes a journal read buffer exactly as
// FSCTL_READ_USN_JOURNAL produces it: an 8-byte next-USN header followed
// by USN_RECORD_V2 records, each 8-byte aligned. It returns the buffer and
// the byte count a real read would report.
func BuildReadBuffer(nextUsn int64, specs ...RecordSpec) ([]byte, uint32) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(nextUsn))

	for _, s := range specs {
		buf = append(buf, EncodeRecord(s)...)
	}
	return buf, uint32(len(buf))
}

// EncodeRecord encodes a single USN_RECORD_V2 with the filename tail at
// offset 60 and the record length padded to an 8-byte boundary.
func EncodeRecord(s RecordSpec) []byte {
	name := utf16.Encode([]rune(s.Name))
	nameBytes := len(name) * 2

	recLen := 60 + nameBytes
	if rem := recLen % 8; rem != 0 {
		recLen += 8 - rem
	}

	rec := make([]byte, recLen)
	binary.LittleEndian.PutUint32(rec[0:], uint32(recLen))
	binary.LittleEndian.PutUint16(rec[4:], 2) // MajorVersion
	binary.LittleEndian.PutUint16(rec[6:], 0) // MinorVersion
	binary.LittleEndian.PutUint64(rec[8:], s.FRN)
	binary.LittleEndian.PutUint64(rec[16:], s.ParentFRN)
	binary.LittleEndian.PutUint64(rec[24:], uint64(s.Usn))
	binary.LittleEndian.PutUint64(rec[32:], uint64(usn.TimeToFiletime(s.Timestamp)))
	binary.LittleEndian.PutUint32(rec[40:], s.Reason)
	binary.LittleEndian.PutUint32(rec[44:], 0) // SourceInfo
	binary.LittleEndian.PutUint32(rec[48:], 0) // SecurityId
	binary.LittleEndian.PutUint32(rec[52:], s.Attributes)
	binary.LittleEndian.PutUint16(rec[56:], uint16(nameBytes))
	binary.LittleEndian.PutUint16(rec[58:], 60)

	for i, u := range name {
		binary.LittleEndian.PutUint16(rec[60+2*i:], u)
	}
	return rec
}
