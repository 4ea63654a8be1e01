//go:build windows

package usn

import (
	"fmt"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// FSCTL codes for change journal access.
const (
	fsctlQueryUsnJournal = 0x000900f4
	fsctlReadUsnJournal  = 0x000900bb
)

// usnJournalData mirrors USN_JOURNAL_DATA_V0.
type usnJournalData struct {
	UsnJournalID    uint64
	FirstUsn        int64
	NextUsn         int64
	LowestValidUsn  int64
	MaxUsn          int64
	MaximumSize     uint64
	AllocationDelta uint64
}

// readUsnJournalData mirrors READ_USN_JOURNAL_DATA_V0.
type readUsnJournalData struct {
	StartUsn          int64
	ReasonMask        uint32
	ReturnOnlyOnClose uint32
	Timeout           uint64
	BytesToWaitFor    uint64
	UsnJournalID      uint64
}

// VolumeDevice is the Windows implementation of Device: an exclusively
// owned handle to a raw NTFS volume, driven with DeviceIoControl.
type VolumeDevice struct {
	volume    string
	handle    windows.Handle
	journalID uint64
	open      bool
}

// NewDevice opens the raw volume device for the given volume identifier
// (e.g. "C:") with read sharing and backup semantics. Opening the raw
// device requires administrator privileges.
func NewDevice(volume string) (*VolumeDevice, error) {
	d := &VolumeDevice{volume: volume}
	if err := d.openHandle(); err != nil {
		return nil, err
	}
	return d, nil
}

// devicePath converts a volume identifier into its raw device path,
// e.g. "C:" -> `\\.\C:`.
func devicePath(volume string) string {
	v := strings.TrimSuffix(volume, `\`)
	if !strings.HasSuffix(v, ":") {
		v += ":"
	}
	return `\\.\` + v
}

func (d *VolumeDevice) openHandle() error {
	path, err := windows.UTF16PtrFromString(devicePath(d.volume))
	if err != nil {
		return fmt.Errorf("encoding device path for %s: %w", d.volume, err)
	}

	h, err := windows.CreateFile(
		path,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		switch err {
		case windows.ERROR_ACCESS_DENIED:
			return fmt.Errorf("opening %s: %w", d.volume, ErrPermissionDenied)
		case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND, windows.ERROR_INVALID_NAME:
			return fmt.Errorf("opening %s: %w", d.volume, ErrVolumeUnavailable)
		}
		return fmt.Errorf("opening %s: %w", d.volume, err)
	}

	d.handle = h
	d.open = true
	return nil
}

// Query issues FSCTL_QUERY_USN_JOURNAL and returns the journal metadata
// snapshot. The journal ID from the most recent query is used for
// subsequent reads.
func (d *VolumeDevice) Query() (JournalInfo, error) {
	var data usnJournalData
	var bytesReturned uint32

	err := windows.DeviceIoControl(
		d.handle,
		fsctlQueryUsnJournal,
		nil,
		0,
		(*byte)(unsafe.Pointer(&data)),
		uint32(unsafe.Sizeof(data)),
		&bytesReturned,
		nil,
	)
	if err != nil {
		return JournalInfo{}, fmt.Errorf("querying journal on %s: %w", d.volume, classifyErrno(err))
	}

	d.journalID = data.UsnJournalID
	return JournalInfo{
		JournalID:       data.UsnJournalID,
		FirstUsn:        data.FirstUsn,
		NextUsn:         data.NextUsn,
		LowestValidUsn:  data.LowestValidUsn,
		MaxUsn:          data.MaxUsn,
		MaximumSize:     data.MaximumSize,
		AllocationDelta: data.AllocationDelta,
	}, nil
}

// Read issues FSCTL_READ_USN_JOURNAL starting at startUsn. The zero
// timeout and zero BytesToWaitFor make the call a non-blocking poll: it
// returns immediately with whatever records are available.
func (d *VolumeDevice) Read(startUsn int64, reasonMask uint32, buf []byte) (uint32, error) {
	in := readUsnJournalData{
		StartUsn:     startUsn,
		ReasonMask:   reasonMask,
		UsnJournalID: d.journalID,
	}

	var bytesReturned uint32
	err := windows.DeviceIoControl(
		d.handle,
		fsctlReadUsnJournal,
		(*byte)(unsafe.Pointer(&in)),
		uint32(unsafe.Sizeof(in)),
		&buf[0],
		uint32(len(buf)),
		&bytesReturned,
		nil,
	)
	if err != nil {
		switch err {
		case windows.ERROR_HANDLE_EOF:
			// No more entries: success with an empty batch.
			return 0, nil
		case windows.ERROR_INSUFFICIENT_BUFFER, windows.ERROR_MORE_DATA:
			return 0, fmt.Errorf("reading journal on %s: %w", d.volume, ErrBufferTooSmall)
		case windows.ERROR_JOURNAL_ENTRY_DELETED:
			return 0, ErrJournalRotated
		case windows.ERROR_INVALID_HANDLE, syscall.EINVAL:
			// EINVAL is what a failed DeviceIoControl with a zero error
			// code surfaces as; on a handle that was live at open time,
			// both mean the handle went bad underneath us.
			return 0, ErrHandleStale
		}
		return 0, fmt.Errorf("reading journal on %s: %w", d.volume, err)
	}

	return bytesReturned, nil
}

// Reopen closes and reacquires the volume handle, then refreshes the
// journal ID so subsequent reads target the live journal.
func (d *VolumeDevice) Reopen() error {
	if err := d.Close(); err != nil {
		return err
	}
	if err := d.openHandle(); err != nil {
		return err
	}
	if _, err := d.Query(); err != nil {
		d.Close()
		return err
	}
	return nil
}

// Close releases the volume handle. Idempotent.
func (d *VolumeDevice) Close() error {
	if !d.open {
		return nil
	}
	d.open = false
	if err := windows.CloseHandle(d.handle); err != nil {
		return fmt.Errorf("closing handle for %s: %w", d.volume, err)
	}
	return nil
}

// classifyErrno maps metadata-query errors onto the package sentinels.
func classifyErrno(err error) error {
	switch err {
	case windows.ERROR_ACCESS_DENIED:
		return ErrPermissionDenied
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
		return ErrVolumeUnavailable
	}
	return err
}
