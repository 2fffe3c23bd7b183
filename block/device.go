// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package block provides support for operations on blockdevices.
package block

import "os"

// Device wraps blockdevice operations.
type Device struct {
	f *os.File

	devNo     uint64
	ownedFile bool
}

// NewFromFile returns a new Device from the specified file.
//
// The file is not closed by Close.
func NewFromFile(f *os.File) *Device {
	return &Device{f: f}
}

// File returns the underlying file.
func (d *Device) File() *os.File {
	return d.f
}

// Close the device if it was opened by NewFromPath.
func (d *Device) Close() error {
	if !d.ownedFile {
		return nil
	}

	return d.f.Close()
}

// DefaultBlockSize is the default block size in bytes.
const DefaultBlockSize = 512

// Options for opening a device.
type Options struct {
	Flag int
}

// Option configures NewFromPath.
type Option func(*Options)

// OpenForWrite opens the device read-write.
func OpenForWrite() Option {
	return func(o *Options) {
		o.Flag |= os.O_RDWR
	}
}
