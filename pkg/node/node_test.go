package node

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Thermoquad/sensornode/pkg/radio"
	"github.com/Thermoquad/sensornode/pkg/wire"
)

// ============================================================
// Test doubles
// ============================================================

type powerCall struct {
	period        Period
	adcOff, bodOff bool
}

// fakeLowPower records power-down calls without sleeping
type fakeLowPower struct {
	quantum time.Duration
	calls   []powerCall
	// cancel, when set, is called on the first Forever power-down
	cancel context.CancelFunc
}

func (f *fakeLowPower) Quantum() time.Duration { return f.quantum }

func (f *fakeLowPower) PowerDown(ctx context.Context, p Period, adcOff, bodOff bool) error {
	f.calls = append(f.calls, powerCall{p, adcOff, bodOff})
	if p == PeriodForever && f.cancel != nil {
		f.cancel()
		return ctx.Err()
	}
	return nil
}

func (f *fakeLowPower) count(p Period) int {
	n := 0
	for _, c := range f.calls {
		if c.period == p {
			n++
		}
	}
	return n
}

type fakeSensor struct {
	name    string
	initErr error
	readErr error
	set     map[wire.Tag]int
	inits   int
	reads   int
}

func (s *fakeSensor) Name() string { return s.name }

func (s *fakeSensor) Init(ctx context.Context) error {
	s.inits++
	return s.initErr
}

func (s *fakeSensor) Read(ctx context.Context, r *wire.Readings) error {
	s.reads++
	if s.readErr != nil {
		return s.readErr
	}
	for tag, v := range s.set {
		r.MustSet(tag, v)
	}
	return nil
}

type fakeMotion struct {
	fakeSensor
}

func (m *fakeMotion) Motion() bool { return true }

type fixedVoltage struct {
	mv  int
	err error
}

func (v fixedVoltage) Millivolts(ctx context.Context) (int, error) { return v.mv, v.err }

func newTestController(t *testing.T, cfg Config) (*Controller, *radio.Recorder, *fakeLowPower) {
	t.Helper()
	rec := radio.NewRecorder()
	lp := &fakeLowPower{quantum: 8 * time.Second}
	if cfg.Radio == nil {
		cfg.Radio = rec
	}
	cfg.RadioConfig = radio.DefaultConfig()
	cfg.Power = NewPowerManager(lp, nil)
	c, err := NewController(cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, rec, lp
}

// ============================================================
// Identifier
// ============================================================

func TestResolveID(t *testing.T) {
	image := func(b ...byte) io.ReaderAt {
		mem := bytes.Repeat([]byte{0xFF}, 32)
		copy(mem[IDAddress:], b)
		return bytes.NewReader(mem)
	}

	tests := []struct {
		name string
		src  io.ReaderAt
		want DeviceID
	}{
		{"erased", image(), 0},
		{"171", image(0xAB, 0x00, 0x00, 0x00), 171},
		{"low byte 0xFF reads as erased", image(0xFF, 0x0F, 0x00, 0x00), 0},
		{"0x1234", image(0x34, 0x12, 0x00, 0x00), 0x1234},
		{"negative", image(0xFE, 0xFF, 0xFF, 0xFF), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveID(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveID = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveID_ShortStorage(t *testing.T) {
	got, err := ResolveID(bytes.NewReader(make([]byte, 8)))
	if err == nil {
		t.Error("expected error for storage shorter than the identifier address")
	}
	if got != 0 {
		t.Errorf("ResolveID = %d, want 0", got)
	}
}

func TestDeviceID_String(t *testing.T) {
	tests := []struct {
		id   DeviceID
		want string
	}{
		{0, "0"},
		{171, "AB"},
		{0xFFF, "FFF"},
		{-1, "FFFFFFFF"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("DeviceID(%d).String() = %q, want %q", int32(tt.id), got, tt.want)
		}
	}
}

func TestIdentity_ResolvesOnce(t *testing.T) {
	mem := bytes.Repeat([]byte{0xFF}, 32)
	copy(mem[IDAddress:], []byte{0x05, 0, 0, 0})
	id := NewIdentity(bytes.NewReader(mem))

	first, _ := id.ID()
	mem[IDAddress] = 0x06
	second, _ := id.ID()
	if first != 5 || second != 5 {
		t.Errorf("ID = %d then %d, want 5 both times", first, second)
	}
}

// ============================================================
// Power manager
// ============================================================

func TestPowerManager_Quanta(t *testing.T) {
	pm := NewPowerManager(&fakeLowPower{quantum: 8 * time.Second}, nil)

	tests := []struct {
		name string
		req  SleepRequest
		want int
	}{
		{"8 minutes", SleepRequest{Kind: SleepMinutes, Minutes: 8}, 60},
		{"1 minute drops remainder", SleepRequest{Kind: SleepMinutes, Minutes: 1}, 7},
		{"4 minutes", SleepRequest{Kind: SleepMinutes, Minutes: 4}, 30},
		{"254 minutes", SleepRequest{Kind: SleepMinutes, Minutes: 254}, 1905},
		{"short backoff", ShortBackoff(), 1},
		{"forever", Forever(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pm.Quanta(tt.req); got != tt.want {
				t.Errorf("Quanta = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPowerManager_Sleep(t *testing.T) {
	lp := &fakeLowPower{quantum: 8 * time.Second}
	pm := NewPowerManager(lp, nil)
	ctx := context.Background()

	req, err := Minutes(8)
	if err != nil {
		t.Fatalf("Minutes(8): %v", err)
	}
	n, err := pm.Sleep(ctx, req)
	if err != nil || n != 60 {
		t.Fatalf("Sleep(8 min) = %d, %v", n, err)
	}
	for i, c := range lp.calls {
		if c.period != PeriodQuantum || !c.adcOff || !c.bodOff {
			t.Fatalf("call %d = %+v, want quantum with ADC and BOD off", i, c)
		}
	}

	lp.calls = nil
	if _, err := pm.Sleep(ctx, Forever()); err != nil {
		t.Fatalf("Sleep(forever): %v", err)
	}
	if len(lp.calls) != 1 || lp.calls[0].period != PeriodForever {
		t.Errorf("forever calls = %+v", lp.calls)
	}
}

func TestMinutes_Range(t *testing.T) {
	for _, n := range []int{0, 255, -1} {
		if _, err := Minutes(n); !errors.Is(err, ErrSleepRange) {
			t.Errorf("Minutes(%d): expected ErrSleepRange, got %v", n, err)
		}
	}
	for _, n := range []int{1, 254} {
		if _, err := Minutes(n); err != nil {
			t.Errorf("Minutes(%d): %v", n, err)
		}
	}
}

// ============================================================
// Controller
// ============================================================

func TestController_Cycle(t *testing.T) {
	hygro := &fakeSensor{name: "hygro", set: map[wire.Tag]int{
		wire.TagHygroTemp:     213,
		wire.TagHygroHumidity: 556,
	}}
	c, rec, _ := newTestController(t, Config{
		Node:    171,
		Sensors: []Sensor{hygro},
		Voltage: fixedVoltage{mv: 3300},
	})
	ctx := context.Background()

	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	res, next := c.RunCycle(ctx)
	if res.Err != nil || !res.Transmitted {
		t.Fatalf("cycle result: %+v", res)
	}
	if next.Kind != SleepMinutes || next.Minutes != DefaultLongSleep {
		t.Errorf("next sleep = %v, want %d min", next, DefaultLongSleep)
	}

	frames := rec.Frames()
	if len(frames) != 1 {
		t.Fatalf("transmitted %d frames, want 1", len(frames))
	}
	if len(frames[0]) != wire.FrameSize {
		t.Errorf("frame length %d", len(frames[0]))
	}
	want := "M,N:AB,T1:213,H1:556,V1:33"
	if !bytes.HasPrefix(frames[0], []byte(want)) {
		t.Errorf("frame %q does not start with %q", frames[0], want)
	}
}

func TestController_InitFailureRetries(t *testing.T) {
	rec := radio.NewRecorder()
	rec.BeginErr = errors.New("chip not found")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lp := &fakeLowPower{quantum: 8 * time.Second}
	var events []Event
	c, err := NewController(Config{
		Radio:       rec,
		RadioConfig: radio.DefaultConfig(),
		Power:       NewPowerManager(lp, nil),
		Observer: func(e Event) {
			events = append(events, e)
			// Let the third attempt succeed
			if e.Kind == EventInitFailed && len(lp.calls) == 1 {
				rec.BeginErr = nil
			}
		},
		MaxCycles: 1,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Begins() != 3 {
		t.Errorf("Begin called %d times, want 3", rec.Begins())
	}
	if got := lp.count(PeriodQuantum); got != 2 {
		t.Errorf("backoff quanta = %d, want 2", got)
	}
	failed := 0
	for _, e := range events {
		if e.Kind == EventInitFailed {
			failed++
			if !errors.Is(e.Err, ErrInitFailure) {
				t.Errorf("init failure event error %v does not wrap ErrInitFailure", e.Err)
			}
		}
	}
	if failed != 2 {
		t.Errorf("init failures = %d, want 2", failed)
	}
}

func TestController_SensorInitFailure(t *testing.T) {
	broken := &fakeSensor{name: "baro", initErr: errors.New("no ack")}
	c, _, _ := newTestController(t, Config{Sensors: []Sensor{broken}})

	err := c.Init(context.Background())
	if !errors.Is(err, ErrInitFailure) {
		t.Fatalf("expected ErrInitFailure, got %v", err)
	}
	if c.State() != StateInit {
		t.Errorf("state = %v, want init", c.State())
	}
}

func TestController_ReadFailureSkipsTransmit(t *testing.T) {
	gas := &fakeSensor{name: "gas", readErr: errors.New("forced read failed")}
	after := &fakeSensor{name: "hygro"}
	c, rec, _ := newTestController(t, Config{Sensors: []Sensor{gas, after}})
	ctx := context.Background()

	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	res, next := c.RunCycle(ctx)
	if !errors.Is(res.Err, ErrReadFailed) {
		t.Errorf("expected ErrReadFailed, got %v", res.Err)
	}
	if next.Kind != SleepShortBackoff {
		t.Errorf("next = %v, want short backoff", next)
	}
	if len(rec.Frames()) != 0 {
		t.Error("frame transmitted after read failure")
	}
	if after.reads != 0 {
		t.Error("sampling continued after a failed read")
	}
}

func TestController_OverflowSkipsTransmit(t *testing.T) {
	all := map[wire.Tag]int{}
	for _, tag := range wire.Tags {
		all[tag] = -12345
	}
	c, rec, _ := newTestController(t, Config{
		Node:    -1,
		Debug:   true,
		Sensors: []Sensor{&fakeSensor{name: "everything", set: all}},
	})
	ctx := context.Background()

	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	res, next := c.RunCycle(ctx)
	if !errors.Is(res.Err, wire.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", res.Err)
	}
	if res.Encoded || len(rec.Frames()) != 0 {
		t.Error("overflowing frame was transmitted")
	}
	if next.Kind != SleepShortBackoff {
		t.Errorf("next = %v, want short backoff", next)
	}
	if c.Counter() != 1 {
		t.Errorf("counter advanced to %d on an overflowed cycle", c.Counter())
	}
}

func TestController_TransmitErrorIsNotFatal(t *testing.T) {
	c, rec, _ := newTestController(t, Config{Node: 1})
	ctx := context.Background()

	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	rec.TransmitErr = radio.ErrPacketTooLong
	res, next := c.RunCycle(ctx)
	if !errors.Is(res.TxErr, radio.ErrPacketTooLong) {
		t.Errorf("TxErr = %v", res.TxErr)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
	if next.Kind != SleepMinutes {
		t.Errorf("next = %v, want normal sleep", next)
	}
}

func TestController_DebugCounter(t *testing.T) {
	c, rec, _ := newTestController(t, Config{Node: 0, Debug: true})
	ctx := context.Background()

	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 3; i++ {
		c.RunCycle(ctx)
	}

	frames := rec.Frames()
	for i, want := range []string{"M,I:1,N:0,V1:0", "M,I:2,N:0,V1:0", "M,I:3,N:0,V1:0"} {
		if !bytes.HasPrefix(frames[i], []byte(want)) {
			t.Errorf("frame %d = %q, want prefix %q", i, frames[i], want)
		}
	}
}

func TestController_CounterWraps(t *testing.T) {
	c, rec, _ := newTestController(t, Config{Debug: true})
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c.counter = 65535

	c.RunCycle(ctx)
	c.RunCycle(ctx)
	frames := rec.Frames()
	if !bytes.HasPrefix(frames[0], []byte("M,I:65535,")) || !bytes.HasPrefix(frames[1], []byte("M,I:0,")) {
		t.Errorf("frames = %q", frames)
	}
}

func TestController_VoltageFailureEncodesZero(t *testing.T) {
	c, rec, _ := newTestController(t, Config{
		Node:    2,
		Voltage: fixedVoltage{err: errors.New("adc busy")},
	})
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c.RunCycle(ctx)
	if !bytes.HasPrefix(rec.Frames()[0], []byte("M,N:2,V1:0,")) {
		t.Errorf("frame = %q", rec.Frames()[0])
	}
}

func TestController_MotionSleepsForever(t *testing.T) {
	pir := &fakeMotion{fakeSensor{name: "pir", set: map[wire.Tag]int{wire.TagMotion: 1}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := radio.NewRecorder()
	lp := &fakeLowPower{quantum: 8 * time.Second}
	c, err := NewController(Config{
		Radio:       rec,
		RadioConfig: radio.DefaultConfig(),
		Power:       NewPowerManager(lp, nil),
		Sensors:     []Sensor{pir},
		MaxCycles:   2,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if !c.Motion() {
		t.Fatal("motion policy not detected")
	}

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Forever after init, then forever between the two cycles
	if got := lp.count(PeriodForever); got != 2 {
		t.Errorf("forever sleeps = %d, want 2", got)
	}
	if got := lp.count(PeriodQuantum); got != 0 {
		t.Errorf("timed sleeps = %d, want 0", got)
	}
	if len(rec.Frames()) != 2 {
		t.Errorf("frames = %d, want 2", len(rec.Frames()))
	}

	_, next := c.RunCycle(ctx)
	if next.Kind != SleepForever {
		t.Errorf("next = %v, want forever", next)
	}
}

func TestController_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	lp := &fakeLowPower{quantum: 8 * time.Second, cancel: cancel}
	pir := &fakeMotion{fakeSensor{name: "pir"}}
	c, err := NewController(Config{
		Radio:       radio.NewRecorder(),
		RadioConfig: radio.DefaultConfig(),
		Power:       NewPowerManager(lp, nil),
		Sensors:     []Sensor{pir},
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestStatistics_Observe(t *testing.T) {
	stats := NewStatistics()
	c, rec, _ := newTestController(t, Config{Node: 3, Observer: stats.Observe})
	ctx := context.Background()

	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, next := c.RunCycle(ctx)
	if err := c.Sleep(ctx, next); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	rec.TransmitErr = errors.New("fifo underflow")
	c.RunCycle(ctx)

	snap := stats.Snapshot()
	if snap.Cycles != 2 || snap.Transmitted != 1 || snap.TransmitErrors != 1 {
		t.Errorf("counters = %+v", snap)
	}
	if snap.QuantumSleeps != 30 {
		t.Errorf("QuantumSleeps = %d, want 30", snap.QuantumSleeps)
	}
	if snap.LastFrame != "M,N:3,V1:0" {
		t.Errorf("LastFrame = %q", snap.LastFrame)
	}

	stats.Reset()
	if stats.Snapshot().Cycles != 0 {
		t.Error("Reset did not clear counters")
	}
}

func TestNewController_RejectsLongSleep(t *testing.T) {
	_, err := NewController(Config{
		Radio:     radio.NewRecorder(),
		Power:     NewPowerManager(&fakeLowPower{quantum: 8 * time.Second}, nil),
		LongSleep: 255,
	})
	if !errors.Is(err, ErrSleepRange) {
		t.Errorf("expected ErrSleepRange, got %v", err)
	}
}
