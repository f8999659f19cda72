// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of the duty-cycle statistics.
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Cycles         uint64
	Transmitted    uint64
	TransmitErrors uint64
	Overflows      uint64
	ReadFailures   uint64
	InitFailures   uint64
	QuantumSleeps  uint64
	ForeverSleeps  uint64

	LastFrame string
	LastError string
}

// Statistics tracks duty-cycle counters. It is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}}
}

// Observe updates the counters from a controller event. It has the Observer
// signature so it can be chained with other observers.
func (s *Statistics) Observe(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Kind {
	case EventInitFailed:
		s.c.InitFailures++
	case EventReadFailed:
		s.c.Cycles++
		s.c.ReadFailures++
	case EventOverflow:
		s.c.Cycles++
		s.c.Overflows++
	case EventTransmit:
		s.c.Cycles++
		s.c.Transmitted++
		if e.Frame != nil {
			s.c.LastFrame = e.Frame.Payload()
		}
	case EventTransmitFailed:
		s.c.Cycles++
		s.c.TransmitErrors++
	case EventWake:
		if e.Sleep.Kind == SleepForever {
			s.c.ForeverSleeps++
		}
		s.c.QuantumSleeps += uint64(e.Quanta)
	}
	if e.Err != nil {
		s.c.LastError = e.Err.Error()
	}
	s.c.LastUpdateTime = time.Now()
}

// Snapshot returns a copy of the counters.
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var txPercent float64
	if snap.Cycles > 0 {
		txPercent = float64(snap.Transmitted) * 100.0 / float64(snap.Cycles)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Cycles:          %8d\n", snap.Cycles)
	result += fmt.Sprintf("Transmitted:     %8d (%.1f%%)\n", snap.Transmitted, txPercent)

	if snap.TransmitErrors > 0 {
		result += fmt.Sprintf("Transmit Errors: %8d\n", snap.TransmitErrors)
	}
	if snap.Overflows > 0 {
		result += fmt.Sprintf("Overflows:       %8d\n", snap.Overflows)
	}
	if snap.ReadFailures > 0 {
		result += fmt.Sprintf("Read Failures:   %8d\n", snap.ReadFailures)
	}
	if snap.InitFailures > 0 {
		result += fmt.Sprintf("Init Failures:   %8d\n", snap.InitFailures)
	}

	result += fmt.Sprintf("Quantum Sleeps:  %8d\n", snap.QuantumSleeps)
	result += fmt.Sprintf("Forever Sleeps:  %8d\n", snap.ForeverSleeps)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
}
