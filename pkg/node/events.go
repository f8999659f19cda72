// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"time"

	"github.com/Thermoquad/sensornode/pkg/wire"
)

// EventKind identifies a controller event.
type EventKind int

const (
	EventInit EventKind = iota
	EventInitFailed
	EventReadFailed
	EventOverflow
	EventTransmit
	EventTransmitFailed
	EventSleep
	EventWake
)

var eventNames = map[EventKind]string{
	EventInit:           "init",
	EventInitFailed:     "init_failed",
	EventReadFailed:     "read_failed",
	EventOverflow:       "overflow",
	EventTransmit:       "transmit",
	EventTransmitFailed: "transmit_failed",
	EventSleep:          "sleep",
	EventWake:           "wake",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is emitted by the controller at each state transition of interest.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Node     DeviceID
	Counter  uint16
	Readings wire.Readings
	Frame    *wire.Frame // set for transmit events
	Sleep    SleepRequest
	Quanta   int // quantum power-downs performed, wake events only
	Err      error
}

// Observer receives controller events synchronously on the controller's
// goroutine. It must not block.
type Observer func(Event)

// Observers fans an event out to several observers in order.
func Observers(obs ...Observer) Observer {
	return func(e Event) {
		for _, o := range obs {
			if o != nil {
				o(e)
			}
		}
	}
}
