// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Period selects the length of a single power-down.
type Period int

const (
	PeriodQuantum Period = iota // one hardware sleep quantum
	PeriodForever               // until an external wake-up
)

func (p Period) String() string {
	switch p {
	case PeriodQuantum:
		return "quantum"
	case PeriodForever:
		return "forever"
	default:
		return fmt.Sprintf("period(%d)", int(p))
	}
}

// LowPower is the platform's power-down primitive.
type LowPower interface {
	PowerDown(ctx context.Context, period Period, adcOff, bodOff bool) error
	Quantum() time.Duration
}

// SleepKind is the type of a sleep request.
type SleepKind int

const (
	SleepForever SleepKind = iota
	SleepMinutes
	SleepShortBackoff
)

// Minutes accepted by a minutes sleep
const (
	MinSleepMinutes = 1
	MaxSleepMinutes = 254
)

// SleepRequest describes how long the node should power down.
type SleepRequest struct {
	Kind    SleepKind
	Minutes int
}

// Forever sleeps until an external wake-up.
func Forever() SleepRequest {
	return SleepRequest{Kind: SleepForever}
}

// ShortBackoff sleeps a single quantum.
func ShortBackoff() SleepRequest {
	return SleepRequest{Kind: SleepShortBackoff}
}

// Minutes sleeps approximately n minutes.
func Minutes(n int) (SleepRequest, error) {
	r := SleepRequest{Kind: SleepMinutes, Minutes: n}
	if err := r.Validate(); err != nil {
		return SleepRequest{}, err
	}
	return r, nil
}

// Validate checks the minutes range.
func (r SleepRequest) Validate() error {
	if r.Kind == SleepMinutes && (r.Minutes < MinSleepMinutes || r.Minutes > MaxSleepMinutes) {
		return fmt.Errorf("%w: %d", ErrSleepRange, r.Minutes)
	}
	return nil
}

func (r SleepRequest) String() string {
	switch r.Kind {
	case SleepForever:
		return "forever"
	case SleepMinutes:
		return fmt.Sprintf("%d min", r.Minutes)
	case SleepShortBackoff:
		return "short backoff"
	default:
		return fmt.Sprintf("sleep(%d)", int(r.Kind))
	}
}

// PowerManager turns sleep requests into power-down calls.
type PowerManager struct {
	lp     LowPower
	logger *slog.Logger

	// SettleDelay runs before every sleep so pending output can drain.
	SettleDelay time.Duration
}

// NewPowerManager creates a manager on top of lp.
func NewPowerManager(lp LowPower, logger *slog.Logger) *PowerManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PowerManager{lp: lp, logger: logger}
}

// Quanta returns the number of quantum power-downs a request is made of.
// Minutes are rounded down to whole quanta, so 8 minutes at an 8 s quantum
// is 60 quanta and 1 minute is 7. Forever returns 0.
func (m *PowerManager) Quanta(r SleepRequest) int {
	switch r.Kind {
	case SleepMinutes:
		secs := int(m.lp.Quantum() / time.Second)
		if secs <= 0 {
			secs = 1
		}
		return r.Minutes * 60 / secs
	case SleepShortBackoff:
		return 1
	default:
		return 0
	}
}

// Sleep powers down for the requested period. It returns the number of
// quantum power-downs performed. A cancelled ctx ends the sleep early.
func (m *PowerManager) Sleep(ctx context.Context, r SleepRequest) (int, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}

	if m.SettleDelay > 0 {
		t := time.NewTimer(m.SettleDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}

	m.logger.Debug("powering down", "request", r.String(), "quanta", m.Quanta(r))

	if r.Kind == SleepForever {
		if err := m.lp.PowerDown(ctx, PeriodForever, true, true); err != nil {
			return 0, fmt.Errorf("power down: %w", err)
		}
		return 0, nil
	}

	n := m.Quanta(r)
	for i := 0; i < n; i++ {
		if err := m.lp.PowerDown(ctx, PeriodQuantum, true, true); err != nil {
			return i, fmt.Errorf("power down %d/%d: %w", i+1, n, err)
		}
	}
	return n, nil
}
