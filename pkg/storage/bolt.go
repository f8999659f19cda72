// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package storage

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// eepromBucket holds one image per node profile
	eepromBucket = "eeprom"
)

// Bolt keeps EEPROM images in a bbolt database, keyed by profile name, so
// one bench host can emulate several nodes.
type Bolt struct {
	db   *bbolt.DB
	key  []byte
	size int64
}

// OpenBolt opens the database at path and selects the image for profile.
// A missing image is created erased.
func OpenBolt(path, profile string, size int) (*Bolt, error) {
	if size <= 0 {
		size = DefaultSize
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	b := &Bolt{db: db, key: []byte(profile)}
	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(eepromBucket))
		if err != nil {
			return fmt.Errorf("failed to create eeprom bucket: %w", err)
		}
		if data := bucket.Get(b.key); data != nil {
			b.size = int64(len(data))
			return nil
		}
		b.size = int64(size)
		return bucket.Put(b.key, erased(size))
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bolt) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), b.size); err != nil {
		return 0, err
	}
	var n int
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eepromBucket))
		if bucket == nil {
			return fmt.Errorf("eeprom bucket not found")
		}
		// Values are only valid inside the transaction
		n = copy(p, bucket.Get(b.key)[off:])
		return nil
	})
	return n, err
}

func (b *Bolt) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), b.size); err != nil {
		return 0, err
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eepromBucket))
		if bucket == nil {
			return fmt.Errorf("eeprom bucket not found")
		}
		image := append([]byte(nil), bucket.Get(b.key)...)
		copy(image[off:], p)
		return bucket.Put(b.key, image)
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *Bolt) Size() int64 { return b.size }

func (b *Bolt) Close() error { return b.db.Close() }

// Profiles lists the images stored in the database.
func (b *Bolt) Profiles() ([]string, error) {
	var names []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eepromBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}
