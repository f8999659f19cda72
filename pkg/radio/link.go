// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Link transmits raw frames over a transparent byte link, such as a
// transparent-mode serial radio or a WebSocket bridge. Every frame is sent in
// a single write.
type Link struct {
	w io.WriteCloser

	mu      sync.Mutex
	started bool
	max     int
}

// NewLink creates a link transmitter on w.
func NewLink(w io.WriteCloser) *Link {
	return &Link{w: w}
}

// Begin validates cfg and records the payload limit.
func (l *Link) Begin(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.max = cfg.MaxPayload
	l.started = true
	return nil
}

// Transmit writes frame to the link.
func (l *Link) Transmit(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return ErrNotStarted
	}
	if err := checkLength(frame, l.max); err != nil {
		return err
	}
	n, err := l.w.Write(frame)
	if err != nil {
		return fmt.Errorf("link write: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("link write: short write %d/%d", n, len(frame))
	}
	return nil
}

// Close closes the underlying link.
func (l *Link) Close() error {
	return l.w.Close()
}
