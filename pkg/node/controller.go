// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/sensornode/pkg/radio"
	"github.com/Thermoquad/sensornode/pkg/wire"
)

// DefaultLongSleep is the end-of-cycle sleep in minutes for timer-driven nodes.
const DefaultLongSleep = 4

// State is the controller's position in the duty cycle.
type State int

const (
	StateInit State = iota
	StateReady
	StateSample
	StateEncode
	StateTransmit
	StateSleep
)

var stateNames = [...]string{"init", "ready", "sample", "encode", "transmit", "sleep"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config wires the controller to its collaborators.
type Config struct {
	Node        DeviceID
	Radio       Radio
	RadioConfig radio.Config
	Sensors     []Sensor // sampled in this order
	Voltage     VoltageSource
	Power       *PowerManager
	Encoder     *wire.Encoder

	// Debug adds the I counter field to every frame.
	Debug bool

	// LongSleep is the end-of-cycle sleep in minutes. Ignored when a motion
	// sensor is configured.
	LongSleep int

	// MaxCycles stops Run after that many cycles. Zero runs forever.
	MaxCycles int

	Logger   *slog.Logger
	Observer Observer
}

// CycleResult describes one pass through sample, encode and transmit.
type CycleResult struct {
	Readings    wire.Readings
	Voltage     int
	Counter     uint16
	Frame       wire.Frame
	Encoded     bool
	Transmitted bool
	Err         error // read or encode failure, no transmission attempted
	TxErr       error // transmission failure
}

// Controller runs the duty cycle. It is not safe for concurrent use; one
// goroutine owns it for the process lifetime.
type Controller struct {
	cfg     Config
	logger  *slog.Logger
	state   State
	counter uint16
	motion  bool
	cycles  int
}

// NewController validates cfg and creates a controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Radio == nil {
		return nil, errors.New("controller: radio required")
	}
	if cfg.Power == nil {
		return nil, errors.New("controller: power manager required")
	}
	if cfg.Encoder == nil {
		cfg.Encoder = wire.NewEncoder()
	}
	if cfg.LongSleep == 0 {
		cfg.LongSleep = DefaultLongSleep
	}
	if err := (SleepRequest{Kind: SleepMinutes, Minutes: cfg.LongSleep}).Validate(); err != nil {
		return nil, fmt.Errorf("controller: long sleep: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg,
		logger:  logger.With("node", cfg.Node.String()),
		state:   StateInit,
		counter: 1,
		motion:  hasMotion(cfg.Sensors),
	}, nil
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Counter returns the value the next debug frame will carry.
func (c *Controller) Counter() uint16 { return c.counter }

// Motion reports whether the node runs the motion wake-up policy.
func (c *Controller) Motion() bool { return c.motion }

func (c *Controller) emit(e Event) {
	if c.cfg.Observer == nil {
		return
	}
	e.Time = time.Now()
	e.Node = c.cfg.Node
	c.cfg.Observer(e)
}

// Init brings up the radio and every sensor in order. The first failure
// aborts initialization.
func (c *Controller) Init(ctx context.Context) error {
	c.state = StateInit

	if err := c.cfg.Radio.Begin(ctx, c.cfg.RadioConfig); err != nil {
		err = fmt.Errorf("%w: radio: %w", ErrInitFailure, err)
		c.logger.Error("init failed", "error", err)
		c.emit(Event{Kind: EventInitFailed, Err: err})
		return err
	}
	for _, s := range c.cfg.Sensors {
		if err := s.Init(ctx); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrInitFailure, s.Name(), err)
			c.logger.Error("init failed", "error", err)
			c.emit(Event{Kind: EventInitFailed, Err: err})
			return err
		}
	}

	c.state = StateReady
	c.logger.Info("initialized", "sensors", len(c.cfg.Sensors), "motion", c.motion)
	c.emit(Event{Kind: EventInit})
	return nil
}

// RunCycle samples, encodes and transmits once. It does not sleep; the
// returned request is the sleep that must follow.
func (c *Controller) RunCycle(ctx context.Context) (CycleResult, SleepRequest) {
	var res CycleResult

	c.state = StateSample
	for _, s := range c.cfg.Sensors {
		if err := s.Read(ctx, &res.Readings); err != nil {
			if !errors.Is(err, ErrReadFailed) {
				err = fmt.Errorf("%w: %s: %w", ErrReadFailed, s.Name(), err)
			}
			res.Err = err
			c.logger.Warn("read failed", "sensor", s.Name(), "error", err)
			c.emit(Event{Kind: EventReadFailed, Readings: res.Readings, Err: err})
			return res, ShortBackoff()
		}
	}
	res.Voltage = c.readVoltage(ctx)

	c.state = StateEncode
	pkt := &wire.Packet{
		Node:       int32(c.cfg.Node),
		HasCounter: c.cfg.Debug,
		Readings:   res.Readings,
		Voltage:    res.Voltage,
	}
	if c.cfg.Debug {
		res.Counter = c.counter
		pkt.Counter = c.counter
	}
	frame, err := c.cfg.Encoder.Encode(pkt)
	if err != nil {
		res.Err = err
		c.logger.Warn("encode failed", "error", err, "length", wire.NaturalLength(pkt))
		c.emit(Event{Kind: EventOverflow, Readings: res.Readings, Counter: res.Counter, Err: err})
		return res, ShortBackoff()
	}
	res.Frame = frame
	res.Encoded = true

	c.state = StateTransmit
	if err := c.cfg.Radio.Transmit(ctx, frame.Bytes()); err != nil {
		res.TxErr = err
		c.logger.Warn("transmit failed", "error", err)
		c.emit(Event{Kind: EventTransmitFailed, Readings: res.Readings, Counter: res.Counter, Frame: &res.Frame, Err: err})
	} else {
		res.Transmitted = true
		c.logger.Info("transmitted", "frame", frame.Payload())
		c.emit(Event{Kind: EventTransmit, Readings: res.Readings, Counter: res.Counter, Frame: &res.Frame})
	}

	if c.cfg.Debug {
		c.counter++
	}
	return res, c.cyclePolicy()
}

func (c *Controller) readVoltage(ctx context.Context) int {
	if c.cfg.Voltage == nil {
		return 0
	}
	mv, err := c.cfg.Voltage.Millivolts(ctx)
	if err != nil {
		c.logger.Warn("voltage read failed", "error", err)
		return 0
	}
	return mv / 100
}

func (c *Controller) cyclePolicy() SleepRequest {
	if c.motion {
		return Forever()
	}
	return SleepRequest{Kind: SleepMinutes, Minutes: c.cfg.LongSleep}
}

// Sleep powers down for r and reports the wake-up.
func (c *Controller) Sleep(ctx context.Context, r SleepRequest) error {
	c.state = StateSleep
	c.emit(Event{Kind: EventSleep, Sleep: r})

	n, err := c.cfg.Power.Sleep(ctx, r)
	c.emit(Event{Kind: EventWake, Sleep: r, Quanta: n, Err: err})
	if err != nil {
		return err
	}
	c.state = StateReady
	return nil
}

// Run initializes the node, retrying on failure, and then cycles until ctx
// is done or MaxCycles is reached.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := c.Init(ctx); err == nil {
			break
		}
		if err := c.Sleep(ctx, ShortBackoff()); err != nil {
			return err
		}
	}

	if c.motion {
		if err := c.Sleep(ctx, Forever()); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, next := c.RunCycle(ctx)
		c.cycles++
		if c.cfg.MaxCycles > 0 && c.cycles >= c.cfg.MaxCycles {
			c.logger.Info("cycle limit reached", "cycles", c.cycles)
			return nil
		}

		if err := c.Sleep(ctx, next); err != nil {
			return err
		}
	}
}
