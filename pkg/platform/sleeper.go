// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package platform provides the host-side low-power primitive: a timer
// standing in for the watchdog quantum and an external wake source standing
// in for the interrupt pin.
package platform

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/sensornode/pkg/node"
)

// DefaultQuantum is the longest watchdog period of the deployed hardware.
const DefaultQuantum = 8 * time.Second

// TimerSleeper implements node.LowPower with timers. A quantum power-down
// waits one quantum divided by Scale. A forever power-down waits for the
// wake source, or for ctx when there is none.
type TimerSleeper struct {
	quantum time.Duration
	waker   node.Waker
	logger  *slog.Logger

	// Scale speeds up bench runs. Values <= 1 run in real time.
	Scale float64

	quanta  atomic.Uint64
	forever atomic.Uint64
}

// NewTimerSleeper creates a sleeper. A zero quantum selects DefaultQuantum;
// waker may be nil.
func NewTimerSleeper(quantum time.Duration, waker node.Waker, logger *slog.Logger) *TimerSleeper {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerSleeper{quantum: quantum, waker: waker, logger: logger}
}

// Quantum returns the nominal quantum, unaffected by Scale.
func (s *TimerSleeper) Quantum() time.Duration { return s.quantum }

// Wait returns the real time a single quantum power-down takes.
func (s *TimerSleeper) Wait() time.Duration {
	if s.Scale <= 1 {
		return s.quantum
	}
	return time.Duration(float64(s.quantum) / s.Scale)
}

// PowerDown blocks for the requested period. The ADC and brown-out flags
// have no host equivalent and are only logged.
func (s *TimerSleeper) PowerDown(ctx context.Context, period node.Period, adcOff, bodOff bool) error {
	s.logger.Log(ctx, slog.LevelDebug-4, "power down", "period", period.String(), "adc_off", adcOff, "bod_off", bodOff)

	switch period {
	case node.PeriodForever:
		s.forever.Add(1)
		if s.waker != nil {
			return s.waker.WaitForWake(ctx)
		}
		<-ctx.Done()
		return ctx.Err()
	default:
		s.quanta.Add(1)
		t := time.NewTimer(s.Wait())
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

// Counts returns the number of quantum and forever power-downs entered.
func (s *TimerSleeper) Counts() (quanta, forever uint64) {
	return s.quanta.Load(), s.forever.Load()
}
