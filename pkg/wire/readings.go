// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownTag is returned when a reading uses a tag outside Tags.
var ErrUnknownTag = errors.New("unknown reading tag")

// Field is one present reading.
type Field struct {
	Tag   Tag
	Value int
}

// Readings is the set of optional readings gathered in one duty cycle.
// Each tag is either present with a fixed-point integer value or absent.
// The zero value is an empty set.
type Readings struct {
	values  [12]int
	present uint16
}

// Set stores a present reading, replacing any earlier value for the tag.
func (r *Readings) Set(tag Tag, value int) error {
	i := tagIndex(tag)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	r.values[i] = value
	r.present |= 1 << i
	return nil
}

// MustSet is Set for the package tag constants. Panics on an unknown tag.
func (r *Readings) MustSet(tag Tag, value int) {
	if err := r.Set(tag, value); err != nil {
		panic(fmt.Sprintf("wire: %v", err))
	}
}

// Get returns the value for tag and whether it is present.
func (r *Readings) Get(tag Tag) (int, bool) {
	i := tagIndex(tag)
	if i < 0 || r.present&(1<<i) == 0 {
		return 0, false
	}
	return r.values[i], true
}

// Has reports whether tag is present.
func (r *Readings) Has(tag Tag) bool {
	_, ok := r.Get(tag)
	return ok
}

// Len returns the number of present readings.
func (r *Readings) Len() int {
	n := 0
	for p := r.present; p != 0; p &= p - 1 {
		n++
	}
	return n
}

// Fields returns the present readings in wire order, whatever order they
// were set in.
func (r *Readings) Fields() []Field {
	fields := make([]Field, 0, r.Len())
	for i, tag := range Tags {
		if r.present&(1<<i) != 0 {
			fields = append(fields, Field{Tag: tag, Value: r.values[i]})
		}
	}
	return fields
}

// Reset removes every reading.
func (r *Readings) Reset() {
	*r = Readings{}
}

// Deci scales x by ten and rounds half away from zero: 21.34 -> 213.
func Deci(x float64) int {
	return int(math.Round(x * 10))
}

// Whole rounds x half away from zero.
func Whole(x float64) int {
	return int(math.Round(x))
}

// Flag encodes a boolean reading.
func Flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
