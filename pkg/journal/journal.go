// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package journal records controller events as a stream of CBOR records so
// a bench run can be replayed and inspected later.
package journal

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/wire"
	"github.com/fxamacker/cbor/v2"
)

// Record is one journalled event. Map keys are small integers to keep the
// stream compact.
type Record struct {
	Kind     uint8            `cbor:"0,keyasint"`
	Time     int64            `cbor:"1,keyasint"` // unix milliseconds
	Node     int32            `cbor:"2,keyasint"`
	Counter  uint16           `cbor:"3,keyasint,omitempty"`
	Readings map[string]int64 `cbor:"4,keyasint,omitempty"`
	Frame    []byte           `cbor:"5,keyasint,omitempty"`
	Sleep    string           `cbor:"6,keyasint,omitempty"`
	Quanta   int              `cbor:"7,keyasint,omitempty"`
	Error    string           `cbor:"8,keyasint,omitempty"`
}

// EventKind returns the record kind as a controller event kind.
func (r *Record) EventKind() node.EventKind { return node.EventKind(r.Kind) }

// Timestamp returns the record time.
func (r *Record) Timestamp() time.Time { return time.UnixMilli(r.Time) }

// NewRecord converts a controller event.
func NewRecord(e node.Event) Record {
	rec := Record{
		Kind:    uint8(e.Kind),
		Time:    e.Time.UnixMilli(),
		Node:    int32(e.Node),
		Counter: e.Counter,
	}
	if fields := e.Readings.Fields(); len(fields) > 0 {
		rec.Readings = make(map[string]int64, len(fields))
		for _, f := range fields {
			rec.Readings[string(f.Tag)] = int64(f.Value)
		}
	}
	if e.Frame != nil {
		rec.Frame = e.Frame.Bytes()
	}
	if e.Kind == node.EventSleep || e.Kind == node.EventWake {
		rec.Sleep = e.Sleep.String()
		rec.Quanta = e.Quanta
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	return rec
}

// Writer appends records to an underlying stream. It is safe for
// concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	c   io.Closer
	err error
	n   int
}

// NewWriter creates a journal writer on w. If w is an io.Closer, Close
// closes it.
func NewWriter(w io.Writer) *Writer {
	jw := &Writer{enc: cbor.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		jw.c = c
	}
	return jw
}

// Write appends one record.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(rec); err != nil {
		w.err = fmt.Errorf("journal write: %w", err)
		return w.err
	}
	w.n++
	return nil
}

// Observe journals a controller event. Write errors are kept and returned
// by Err and Close.
func (w *Writer) Observe(e node.Event) {
	_ = w.Write(NewRecord(e))
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Err returns the first write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying stream and reports the first write error.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var cerr error
	if w.c != nil {
		cerr = w.c.Close()
	}
	return errors.Join(w.err, cerr)
}

// Reader decodes records from a stream.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a journal reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return rec, io.EOF
		}
		return rec, fmt.Errorf("journal read: %w", err)
	}
	return rec, nil
}

// ReadAll decodes every record in r.
func ReadAll(r io.Reader) ([]Record, error) {
	jr := NewReader(r)
	var recs []Record
	for {
		rec, err := jr.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

// FormatRecord formats a record into a human-readable line
func FormatRecord(rec Record) string {
	s := fmt.Sprintf("%s %-15s N=%s",
		rec.Timestamp().Format("2006-01-02 15:04:05.000"),
		rec.EventKind(), node.DeviceID(rec.Node))
	if rec.Counter != 0 {
		s += fmt.Sprintf(" I=%d", rec.Counter)
	}
	if len(rec.Frame) == wire.FrameSize {
		var f wire.Frame
		copy(f[:], rec.Frame)
		s += " " + f.Payload()
	} else if len(rec.Readings) > 0 {
		s += fmt.Sprintf(" %v", rec.Readings)
	}
	if rec.Sleep != "" {
		s += " sleep=" + rec.Sleep
		if rec.Quanta > 0 {
			s += fmt.Sprintf(" quanta=%d", rec.Quanta)
		}
	}
	if rec.Error != "" {
		s += " error=" + rec.Error
	}
	return s
}
