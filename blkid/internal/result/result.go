// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package result implements the typed attribute store filled by the probes.
package result

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
)

// Well-known attribute names.
const (
	Type           = "TYPE"
	SecType        = "SEC_TYPE"
	Usage          = "USAGE"
	Version        = "VERSION"
	UUID           = "UUID"
	UUIDSub        = "UUID_SUB"
	LogUUID        = "LOGUUID"
	Label          = "LABEL"
	LabelRaw       = "LABEL_RAW"
	LabelFATBoot   = "LABEL_FATBOOT"
	BlockSize      = "BLOCK_SIZE"
	FSBlockSize    = "FS_BLOCK_SIZE"
	FSSize         = "FS_SIZE"
	FSLastBlock    = "FSLASTBLOCK"
	SBMagic        = "SBMAGIC"
	SBMagicOffset  = "SBMAGIC_OFFSET"
	SBBadChecksum  = "SBBADCSUM"
	Subsystem      = "SUBSYSTEM"
	ExtJournal     = "EXT_JOURNAL"
	Endianness     = "ENDIANNESS"
	SystemID       = "SYSTEM_ID"
	PublisherID    = "PUBLISHER_ID"
	ApplicationID  = "APPLICATION_ID"
	BootSystemID   = "BOOT_SYSTEM_ID"
	DataPreparerID = "DATA_PREPARER_ID"
	VolumeSetID    = "VOLUME_SET_ID"
	VolumeID       = "VOLUME_ID"
	LogicalVolID   = "LOGICAL_VOLUME_ID"
)

// Kind of the attribute value.
type Kind int

// Attribute kinds.
const (
	KindString Kind = iota
	KindRaw
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindRaw:
		return "raw"
	case KindNumber:
		return "number"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrDuplicateKey is returned when an attribute is set twice with different values.
var ErrDuplicateKey = errors.New("attribute is already set")

// Value is a single probed attribute.
type Value struct {
	Name string
	Data []byte
	Kind Kind
}

// String returns the value data as a string.
func (v Value) String() string {
	return string(v.Data)
}

// Store keeps attributes in the order they were set.
type Store struct {
	values []Value
}

// Set records the attribute.
//
// Setting the same value again is a no-op, a different value returns ErrDuplicateKey and
// keeps the first one.
func (s *Store) Set(name string, data []byte, kind Kind) error {
	if idx := s.index(name); idx != -1 {
		if existing := s.values[idx]; existing.Kind == kind && bytes.Equal(existing.Data, data) {
			return nil
		}

		return fmt.Errorf("%w: %s", ErrDuplicateKey, name)
	}

	s.values = append(s.values, Value{
		Name: name,
		Data: bytes.Clone(data),
		Kind: kind,
	})

	return nil
}

// SetString records a string attribute.
func (s *Store) SetString(name, value string) error {
	return s.Set(name, []byte(value), KindString)
}

// Sprintf records a formatted string attribute.
func (s *Store) Sprintf(name, format string, args ...any) error {
	return s.SetString(name, fmt.Sprintf(format, args...))
}

// SetNumber records a number as its decimal string.
func (s *Store) SetNumber(name string, value uint64) error {
	return s.Set(name, fmt.Appendf(nil, "%d", value), KindNumber)
}

// Get returns the attribute by name.
func (s *Store) Get(name string) (Value, bool) {
	if idx := s.index(name); idx != -1 {
		return s.values[idx], true
	}

	return Value{}, false
}

// Has returns true if the attribute is set.
func (s *Store) Has(name string) bool {
	return s.index(name) != -1
}

// Values returns a copy of all attributes in insertion order.
func (s *Store) Values() []Value {
	return slices.Clone(s.values)
}

// Len returns the number of attributes.
func (s *Store) Len() int {
	return len(s.values)
}

// Reset removes all attributes.
func (s *Store) Reset() {
	s.values = nil
}

// Restore replaces the attributes with a previously saved set.
func (s *Store) Restore(values []Value) {
	s.values = slices.Clone(values)
}

func (s *Store) index(name string) int {
	return slices.IndexFunc(s.values, func(v Value) bool { return v.Name == name })
}
