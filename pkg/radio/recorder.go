// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"sync"
)

// Recorder is an in-memory radio for tests and dry runs. It keeps a copy of
// every transmitted frame.
type Recorder struct {
	mu      sync.Mutex
	started bool
	cfg     Config
	frames  [][]byte
	begins  int

	// BeginErr and TransmitErr are returned by Begin and Transmit while set.
	BeginErr    error
	TransmitErr error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Begin records cfg.
func (r *Recorder) Begin(ctx context.Context, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.begins++
	if r.BeginErr != nil {
		return r.BeginErr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.cfg = cfg
	r.started = true
	return nil
}

// Transmit records a copy of frame.
func (r *Recorder) Transmit(ctx context.Context, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return ErrNotStarted
	}
	if r.TransmitErr != nil {
		return r.TransmitErr
	}
	if err := checkLength(frame, r.cfg.MaxPayload); err != nil {
		return err
	}
	r.frames = append(r.frames, append([]byte(nil), frame...))
	return nil
}

// Frames returns the frames transmitted so far.
func (r *Recorder) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.frames))
	copy(out, r.frames)
	return out
}

// Begins returns the number of Begin calls.
func (r *Recorder) Begins() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begins
}

// Config returns the configuration applied by the last successful Begin.
func (r *Recorder) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Close stops the recorder. Later transmissions fail with ErrNotStarted.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	return nil
}
