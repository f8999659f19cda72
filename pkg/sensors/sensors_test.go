package sensors

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/wire"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// ============================================================
// Helpers
// ============================================================

type fakeEnv struct {
	env physic.Env
	err error
}

func (f fakeEnv) Sense(e *physic.Env) error {
	if f.err != nil {
		return f.err
	}
	*e = f.env
	return nil
}

func celsius(c float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(math.Round(c*1000))*physic.MilliKelvin
}

func expectFields(t *testing.T, r *wire.Readings, want map[wire.Tag]int) {
	t.Helper()
	if r.Len() != len(want) {
		t.Errorf("got %d fields (%v), want %d", r.Len(), r.Fields(), len(want))
	}
	for tag, v := range want {
		got, ok := r.Get(tag)
		if !ok {
			t.Errorf("%s missing", tag)
			continue
		}
		if got != v {
			t.Errorf("%s = %d, want %d", tag, got, v)
		}
	}
}

// ============================================================
// Si7021
// ============================================================

func TestSi7021_InitAndRead(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: Si7021Addr, W: []byte{0xFE}},
			{Addr: Si7021Addr, W: []byte{0xE7}, R: []byte{0x3A}},
			{Addr: Si7021Addr, W: []byte{0xF5}},
			{Addr: Si7021Addr, R: []byte{0x7E, 0x28, 0x69}},
			{Addr: Si7021Addr, W: []byte{0xE0}, R: []byte{0x63, 0x49}},
		},
		DontPanic: true,
	}
	s := NewSi7021(bus, nil)
	s.ResetDelay = 0
	s.ConversionDelay = 0
	ctx := context.Background()

	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var r wire.Readings
	if err := s.Read(ctx, &r); err != nil {
		t.Fatalf("Read: %v", err)
	}
	expectFields(t, &r, map[wire.Tag]int{
		wire.TagHygroTemp:     213,
		wire.TagHygroHumidity: 556,
	})
	if err := bus.Close(); err != nil {
		t.Errorf("playback: %v", err)
	}
}

func TestSi7021_BadChecksumIsAbsent(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: Si7021Addr, W: []byte{0xF5}},
			{Addr: Si7021Addr, R: []byte{0x7E, 0x28, 0x00}},
		},
		DontPanic: true,
	}
	s := NewSi7021(bus, nil)
	s.ConversionDelay = 0

	var r wire.Readings
	if err := s.Read(context.Background(), &r); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected no fields, got %v", r.Fields())
	}
}

func TestSi7021_WrongChip(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: Si7021Addr, W: []byte{0xFE}},
			{Addr: Si7021Addr, W: []byte{0xE7}, R: []byte{0x00}},
		},
		DontPanic: true,
	}
	s := NewSi7021(bus, nil)
	s.ResetDelay = 0
	if err := s.Init(context.Background()); !errors.Is(err, ErrNoDevice) {
		t.Errorf("expected ErrNoDevice, got %v", err)
	}
}

// ============================================================
// DS18B20
// ============================================================

func TestDS18B20_Read(t *testing.T) {
	tests := []struct {
		name string
		dev  fakeEnv
		want map[wire.Tag]int
	}{
		{"connected", fakeEnv{env: physic.Env{Temperature: celsius(22.5)}}, map[wire.Tag]int{wire.TagProbeTemp: 225}},
		{"below zero", fakeEnv{env: physic.Env{Temperature: celsius(-4.25)}}, map[wire.Tag]int{wire.TagProbeTemp: -43}},
		{"disconnect sentinel", fakeEnv{env: physic.Env{Temperature: celsius(DisconnectedC)}}, map[wire.Tag]int{}},
		{"bus error", fakeEnv{err: errors.New("no presence pulse")}, map[wire.Tag]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &DS18B20{dev: tt.dev, logger: slog.Default()}
			var r wire.Readings
			if err := s.Read(context.Background(), &r); err != nil {
				t.Fatalf("Read: %v", err)
			}
			expectFields(t, &r, tt.want)
		})
	}
}

// ============================================================
// BMP280
// ============================================================

func TestBMP280_Read(t *testing.T) {
	tests := []struct {
		name string
		env  physic.Env
		want map[wire.Tag]int
	}{
		{
			name: "sea level",
			env:  physic.Env{Temperature: celsius(21.34), Pressure: 101325 * physic.Pascal},
			want: map[wire.Tag]int{
				wire.TagBaroTemp:     213,
				wire.TagBaroPressure: 10132,
				wire.TagBaroAltitude: 0,
			},
		},
		{
			name: "900 hPa",
			env:  physic.Env{Temperature: celsius(5), Pressure: 90000 * physic.Pascal},
			want: map[wire.Tag]int{
				wire.TagBaroTemp:     50,
				wire.TagBaroPressure: 9000,
				wire.TagBaroAltitude: 989,
			},
		},
		{
			name: "zero pressure",
			env:  physic.Env{Temperature: celsius(21.34)},
			want: map[wire.Tag]int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &BMP280{dev: fakeEnv{env: tt.env}, logger: slog.Default(), SeaLevelHPa: SeaLevelHPa}
			var r wire.Readings
			if err := s.Read(context.Background(), &r); err != nil {
				t.Fatalf("Read: %v", err)
			}
			expectFields(t, &r, tt.want)
		})
	}
}

func TestAltitude(t *testing.T) {
	if got := Altitude(SeaLevelHPa, SeaLevelHPa); got != 0 {
		t.Errorf("Altitude at sea level = %f", got)
	}
	if got := Altitude(900, SeaLevelHPa); math.Abs(got-988.67) > 0.01 {
		t.Errorf("Altitude(900) = %f, want 988.67", got)
	}
}

// ============================================================
// BME680
// ============================================================

var (
	bme680TestCoeff1 = []byte{
		0x00, 0x54, 0x66, 0x03, 0x00, 0x37, 0x8E, 0x73, 0xD7, 0x58, 0x00, 0xF1, 0x1B,
		0xA9, 0xFF, 0x30, 0x1E, 0x00, 0x00, 0x37, 0xF4, 0xE2, 0xF5, 0x1E, 0x00,
	}
	bme680TestCoeff2 = []byte{
		0x41, 0x0B, 0x2F, 0x00, 0x2D, 0x14, 0x78, 0x9C, 0x6F, 0x65, 0x20, 0xD1, 0xE2, 0x12, 0x00, 0x00,
	}
	// temp 500000, pressure 400000, humidity 20000, gas 300 in range 5
	bme680TestField = []byte{
		0x80, 0x00, 0x61, 0xA8, 0x00, 0x7A, 0x12, 0x00, 0x4E, 0x20, 0x00, 0x00, 0x00, 0x4B, 0x35,
	}
)

func TestBME680_Calibration(t *testing.T) {
	c := parseBME680Calibration(append(append([]byte(nil), bme680TestCoeff1...), bme680TestCoeff2...))

	checks := []struct {
		name      string
		got, want int
	}{
		{"t1", int(c.t1), 25967},
		{"t2", int(c.t2), 26196},
		{"t3", int(c.t3), 3},
		{"p1", int(c.p1), 36407},
		{"p2", int(c.p2), -10381},
		{"p5", int(c.p5), -87},
		{"p8", int(c.p8), -3017},
		{"p10", int(c.p10), 30},
		{"h1", int(c.h1), 763},
		{"h2", int(c.h2), 1040},
		{"h7", int(c.h7), -100},
		{"gh1", int(c.gh1), -30},
		{"gh2", int(c.gh2), -12000},
		{"gh3", int(c.gh3), 18},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Errorf("%s = %d, want %d", ch.name, ch.got, ch.want)
		}
	}
}

func TestBME680_Compensation(t *testing.T) {
	c := parseBME680Calibration(append(append([]byte(nil), bme680TestCoeff1...), bme680TestCoeff2...))
	c.rangeSwErr = -1

	temp, fine := c.temperature(500000)
	if math.Abs(temp-26.4004) > 0.001 {
		t.Errorf("temperature = %f, want 26.4004", temp)
	}
	if p := c.pressure(400000, fine); math.Abs(p-91779.44) > 0.01 {
		t.Errorf("pressure = %f, want 91779.44", p)
	}
	if h := c.humidity(20000, fine); math.Abs(h-40.3991) > 0.001 {
		t.Errorf("humidity = %f, want 40.3991", h)
	}
	if g := c.gasResistance(300, 5); math.Abs(g-295692.96) > 0.01 {
		t.Errorf("gas resistance = %f, want 295692.96", g)
	}
}

func TestBME680_GasWait(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want uint8
	}{
		{30 * time.Millisecond, 30},
		{150 * time.Millisecond, 0x65},
		{5 * time.Second, 0xFF},
	}
	for _, tt := range tests {
		if got := bme680GasWait(tt.d); got != tt.want {
			t.Errorf("bme680GasWait(%v) = 0x%02X, want 0x%02X", tt.d, got, tt.want)
		}
	}
}

func TestBME680_InitAndRead(t *testing.T) {
	const addr = BME680Addr
	ops := []i2ctest.IO{
		{Addr: addr, W: []byte{0xD0}, R: []byte{0x61}},
		{Addr: addr, W: []byte{0xE0, 0xB6}},
		{Addr: addr, W: []byte{0x89}, R: bme680TestCoeff1},
		{Addr: addr, W: []byte{0xE1}, R: bme680TestCoeff2},
		{Addr: addr, W: []byte{0x02}, R: []byte{0x10}},
		{Addr: addr, W: []byte{0x00}, R: []byte{0x28}},
		{Addr: addr, W: []byte{0x04}, R: []byte{0xF0}},
		{Addr: addr, W: []byte{0x72, 0x02}},
		{Addr: addr, W: []byte{0x75, 0x08}},
		{Addr: addr, W: []byte{0x74, 0x8C}},
		{Addr: addr, W: []byte{0x5A, 117}},
		{Addr: addr, W: []byte{0x64, 0x65}},
		{Addr: addr, W: []byte{0x71, 0x10}},
		{Addr: addr, W: []byte{0x70, 0x00}},
		// forced measurement
		{Addr: addr, W: []byte{0x74, 0x8D}},
		{Addr: addr, W: []byte{0x1D}, R: bme680TestField},
	}
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}

	s := NewBME680(bus, 0, nil)
	s.ResetDelay = 0
	s.PollInterval = 0
	ctx := context.Background()

	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var r wire.Readings
	if err := s.Read(ctx, &r); err != nil {
		t.Fatalf("Read: %v", err)
	}
	expectFields(t, &r, map[wire.Tag]int{
		wire.TagGasTemp:       264,
		wire.TagGasHumidity:   404,
		wire.TagGasPressure:   9178,
		wire.TagGasAltitude:   827,
		wire.TagGasResistance: 296,
	})
	if err := bus.Close(); err != nil {
		t.Errorf("playback: %v", err)
	}
}

func TestBME680_ReadFailureIsFatal(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{}, DontPanic: true}
	s := NewBME680(bus, 0, nil)

	var r wire.Readings
	err := s.Read(context.Background(), &r)
	if !errors.Is(err, node.ErrReadFailed) {
		t.Errorf("expected ErrReadFailed, got %v", err)
	}
}

func TestBME680_WrongChip(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops:       []i2ctest.IO{{Addr: BME680Addr, W: []byte{0xD0}, R: []byte{0x60}}},
		DontPanic: true,
	}
	s := NewBME680(bus, 0, nil)
	if err := s.Init(context.Background()); !errors.Is(err, ErrNoDevice) {
		t.Errorf("expected ErrNoDevice, got %v", err)
	}
}

// ============================================================
// Motion
// ============================================================

func TestMotion(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", EdgesChan: make(chan gpio.Level, 1)}
	m := NewMotion(pin)
	ctx := context.Background()

	if err := m.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var r wire.Readings
	m.Read(ctx, &r)
	if r.Has(wire.TagMotion) {
		t.Error("M4 set while output is low")
	}

	pin.EdgesChan <- gpio.High
	if err := m.WaitForWake(ctx); err != nil {
		t.Fatalf("WaitForWake: %v", err)
	}
	// detector output stays high after the edge
	pin.L = gpio.High
	m.Read(ctx, &r)
	expectFields(t, &r, map[wire.Tag]int{wire.TagMotion: 1})

	var _ node.MotionSensor = m
	var _ node.Waker = m
}

func TestMotion_WaitCancelled(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", EdgesChan: make(chan gpio.Level)}
	m := NewMotion(pin)
	m.WaitSlice = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.WaitForWake(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForWake = %v, want deadline exceeded", err)
	}
}

// ============================================================
// Supply
// ============================================================

func TestSysfsSupply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voltage_now")
	if err := os.WriteFile(path, []byte("3312000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mv, err := SysfsSupply{Path: path}.Millivolts(context.Background())
	if err != nil || mv != 3312 {
		t.Errorf("Millivolts = %d, %v; want 3312", mv, err)
	}

	if _, err := (SysfsSupply{Path: filepath.Join(t.TempDir(), "missing")}).Millivolts(context.Background()); err == nil {
		t.Error("expected error for missing attribute")
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" BME680 "); err != nil || k != KindBME680 {
		t.Errorf("ParseKind = %q, %v", k, err)
	}
	if _, err := ParseKind("dht22"); err == nil {
		t.Error("expected error for unsupported sensor")
	}
}
