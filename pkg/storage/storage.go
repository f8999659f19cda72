// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package storage provides byte-addressed persistent memories holding the
// node identifier: an EEPROM image file, a bbolt database, an AT24 I2C
// EEPROM and an in-memory image.
package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Thermoquad/sensornode/pkg/node"
)

// DefaultSize matches the EEPROM of the deployed microcontroller.
const DefaultSize = 1024

// ErrOutOfRange is returned for accesses past the end of the memory.
var ErrOutOfRange = errors.New("address out of range")

// Memory is a byte-addressed persistent memory.
type Memory interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
	Close() error
}

func checkRange(off int64, n int, size int64) error {
	if off < 0 || off+int64(n) > size {
		return fmt.Errorf("%w: %d+%d (size %d)", ErrOutOfRange, off, n, size)
	}
	return nil
}

// erased returns an erased image of size bytes.
func erased(size int) []byte {
	return bytes.Repeat([]byte{node.ErasedByte}, size)
}

// WriteID provisions the node identifier.
func WriteID(m io.WriterAt, id node.DeviceID) error {
	var buf [node.IDSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))
	if _, err := m.WriteAt(buf[:], node.IDAddress); err != nil {
		return fmt.Errorf("write identifier: %w", err)
	}
	return nil
}

// EraseID returns the identifier cells to the erased state.
func EraseID(m io.WriterAt) error {
	if _, err := m.WriteAt(erased(node.IDSize), node.IDAddress); err != nil {
		return fmt.Errorf("erase identifier: %w", err)
	}
	return nil
}

// Mem is an in-memory image, erased on creation.
type Mem struct {
	data []byte
}

// NewMem creates an erased in-memory image.
func NewMem(size int) *Mem {
	if size <= 0 {
		size = DefaultSize
	}
	return &Mem{data: erased(size)}
}

func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), m.Size()); err != nil {
		return 0, err
	}
	return copy(p, m.data[off:]), nil
}

func (m *Mem) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), m.Size()); err != nil {
		return 0, err
	}
	return copy(m.data[off:], p), nil
}

func (m *Mem) Size() int64 { return int64(len(m.data)) }

func (m *Mem) Close() error { return nil }
