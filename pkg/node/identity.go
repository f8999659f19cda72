// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Persistent storage layout
const (
	IDAddress  = 13   // offset of the 32-bit identifier
	IDSize     = 4    // little-endian int32
	ErasedByte = 0xFF // value of an erased storage cell
)

// DeviceID identifies the node on air.
type DeviceID int32

// String renders the identifier the way it appears in the N field.
func (d DeviceID) String() string {
	return strings.ToUpper(strconv.FormatUint(uint64(uint32(d)), 16))
}

// ResolveID reads the identifier from persistent storage. An erased first
// byte means no identifier was provisioned and yields 0. A failed read also
// yields 0, together with the error so the caller can report it.
func ResolveID(src io.ReaderAt) (DeviceID, error) {
	var buf [IDSize]byte
	if _, err := src.ReadAt(buf[:1], IDAddress); err != nil {
		return 0, fmt.Errorf("read identifier: %w", err)
	}
	if buf[0] == ErasedByte {
		return 0, nil
	}
	if _, err := src.ReadAt(buf[:], IDAddress); err != nil {
		return 0, fmt.Errorf("read identifier: %w", err)
	}
	return DeviceID(int32(binary.LittleEndian.Uint32(buf[:]))), nil
}

// Identity resolves the identifier once and keeps it for the process
// lifetime.
type Identity struct {
	src  io.ReaderAt
	once sync.Once
	id   DeviceID
	err  error
}

// NewIdentity creates an identity backed by src.
func NewIdentity(src io.ReaderAt) *Identity {
	return &Identity{src: src}
}

// ID returns the resolved identifier and the error from the first read.
func (i *Identity) ID() (DeviceID, error) {
	i.once.Do(func() {
		i.id, i.err = ResolveID(i.src)
	})
	return i.id, i.err
}
