//go:build !windows

package usn

import "fmt"

// NewDevice is unavailable off Windows: there is no USN journal to read.
// The Reader and parser remain fully usable against fake devices for
// testing on any platform.
func NewDevice(volume string) (Device, error) {
	return nil, fmt.Errorf("opening %s: %w", volume, ErrUnsupportedPlatform)
}
