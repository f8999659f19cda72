// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package storage

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// AT24 defaults for a 32 Kbit part
const (
	AT24Addr     = 0x50
	AT24Size     = 4096
	AT24PageSize = 32
)

// AT24 is an I2C EEPROM with 16-bit word addressing.
type AT24 struct {
	dev      *i2c.Dev
	size     int64
	pageSize int

	// WriteCycle is the time the chip needs to commit a page.
	WriteCycle time.Duration
}

// NewAT24 creates a driver for the EEPROM at addr on bus.
func NewAT24(bus i2c.Bus, addr uint16, size, pageSize int) *AT24 {
	if addr == 0 {
		addr = AT24Addr
	}
	if size <= 0 {
		size = AT24Size
	}
	if pageSize <= 0 {
		pageSize = AT24PageSize
	}
	return &AT24{
		dev:        &i2c.Dev{Bus: bus, Addr: addr},
		size:       int64(size),
		pageSize:   pageSize,
		WriteCycle: 5 * time.Millisecond,
	}
}

func (e *AT24) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), e.size); err != nil {
		return 0, err
	}
	if err := e.dev.Tx([]byte{byte(off >> 8), byte(off)}, p); err != nil {
		return 0, fmt.Errorf("at24 read 0x%04X: %w", off, err)
	}
	return len(p), nil
}

// WriteAt writes p, splitting it at page boundaries.
func (e *AT24) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), e.size); err != nil {
		return 0, err
	}
	written := 0
	for written < len(p) {
		addr := off + int64(written)
		n := e.pageSize - int(addr%int64(e.pageSize))
		if n > len(p)-written {
			n = len(p) - written
		}
		buf := make([]byte, 2+n)
		buf[0], buf[1] = byte(addr>>8), byte(addr)
		copy(buf[2:], p[written:written+n])
		if err := e.dev.Tx(buf, nil); err != nil {
			return written, fmt.Errorf("at24 write 0x%04X: %w", addr, err)
		}
		written += n
		if e.WriteCycle > 0 {
			time.Sleep(e.WriteCycle)
		}
	}
	return written, nil
}

func (e *AT24) Size() int64 { return e.size }

func (e *AT24) Close() error { return nil }
