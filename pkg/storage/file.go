// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// File is an EEPROM image kept in a regular file, such as a dump read from
// a node with avrdude.
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens the image at path, creating an erased image of size bytes
// if it does not exist. An existing image keeps its own size.
func OpenFile(path string, size int) (*File, error) {
	if size <= 0 {
		size = DefaultSize
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create EEPROM image %s: %w", path, err)
		}
		if _, err := f.Write(erased(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("initialize EEPROM image %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open EEPROM image %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: st.Size()}, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), f.size); err != nil {
		return 0, err
	}
	return f.f.ReadAt(p, off)
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), f.size); err != nil {
		return 0, err
	}
	n, err := f.f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	return n, f.f.Sync()
}

func (f *File) Size() int64 { return f.size }

func (f *File) Close() error { return f.f.Close() }
