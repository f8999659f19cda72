// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/wire"
	"periph.io/x/conn/v3/i2c"
)

// BME680 registers
const (
	BME680Addr = 0x77

	bme680ChipIDReg   = 0xD0
	bme680ChipID      = 0x61
	bme680ResetReg    = 0xE0
	bme680ResetCmd    = 0xB6
	bme680Coeff1Reg   = 0x89
	bme680Coeff1Len   = 25
	bme680Coeff2Reg   = 0xE1
	bme680Coeff2Len   = 16
	bme680ResHeatVal  = 0x00
	bme680ResHeatRng  = 0x02
	bme680RangeSwErr  = 0x04
	bme680FieldReg    = 0x1D
	bme680FieldLen    = 15
	bme680CtrlGas0    = 0x70
	bme680CtrlGas1    = 0x71
	bme680CtrlHum     = 0x72
	bme680CtrlMeas    = 0x74
	bme680Config      = 0x75
	bme680ResHeat0    = 0x5A
	bme680GasWait0    = 0x64
	bme680NewData     = 0x80
	bme680GasValid    = 0x20
	bme680HeatStab    = 0x10
	bme680ModeForced  = 0x01
	bme680RunGas      = 0x10
	bme680OversampleT = 4 // 8x
	bme680OversampleP = 3 // 4x
	bme680OversampleH = 2 // 2x
	bme680FilterSize3 = 2
)

// Gas range correction factors from the Bosch reference driver
var (
	bme680K1Range = [16]float64{0, 0, 0, 0, 0, -1, 0, -0.8, 0, 0, -0.2, -0.5, 0, -1, 0, 0}
	bme680K2Range = [16]float64{0, 0, 0, 0, 0.1, 0.7, 0, -0.8, -0.1, 0, 0, 0, 0, 0, 0, 0}
)

type bme680Calibration struct {
	t1         uint16
	t2         int16
	t3         int8
	p1         uint16
	p2         int16
	p3         int8
	p4         int16
	p5         int16
	p6         int8
	p7         int8
	p8         int16
	p9         int16
	p10        uint8
	h1         uint16
	h2         uint16
	h3         int8
	h4         int8
	h5         int8
	h6         uint8
	h7         int8
	gh1        int8
	gh2        int16
	gh3        int8
	resHeatRng uint8
	resHeatVal int8
	rangeSwErr int8
}

// parseBME680Calibration decodes the two coefficient blocks read from
// 0x89 and 0xE1, concatenated.
func parseBME680Calibration(c []byte) bme680Calibration {
	u16 := func(msb, lsb int) uint16 { return uint16(c[msb])<<8 | uint16(c[lsb]) }
	return bme680Calibration{
		t2:  int16(u16(2, 1)),
		t3:  int8(c[3]),
		p1:  u16(6, 5),
		p2:  int16(u16(8, 7)),
		p3:  int8(c[9]),
		p4:  int16(u16(12, 11)),
		p5:  int16(u16(14, 13)),
		p7:  int8(c[15]),
		p6:  int8(c[16]),
		p8:  int16(u16(20, 19)),
		p9:  int16(u16(22, 21)),
		p10: c[23],
		h2:  uint16(c[25])<<4 | uint16(c[26])>>4,
		h1:  uint16(c[27])<<4 | uint16(c[26]&0x0F),
		h3:  int8(c[28]),
		h4:  int8(c[29]),
		h5:  int8(c[30]),
		h6:  c[31],
		h7:  int8(c[32]),
		t1:  u16(34, 33),
		gh2: int16(u16(36, 35)),
		gh1: int8(c[37]),
		gh3: int8(c[38]),
	}
}

// temperature returns °C and the fine temperature used by the other
// compensations.
func (c *bme680Calibration) temperature(adc uint32) (float64, float64) {
	a := float64(adc)
	var1 := (a/16384.0 - float64(c.t1)/1024.0) * float64(c.t2)
	d := a/131072.0 - float64(c.t1)/8192.0
	var2 := d * d * float64(c.t3) * 16.0
	fine := var1 + var2
	return fine / 5120.0, fine
}

// pressure returns Pa.
func (c *bme680Calibration) pressure(adc uint32, fine float64) float64 {
	var1 := fine/2.0 - 64000.0
	var2 := var1 * var1 * (float64(c.p6) / 131072.0)
	var2 += var1 * float64(c.p5) * 2.0
	var2 = var2/4.0 + float64(c.p4)*65536.0
	var1 = (float64(c.p3)*var1*var1/16384.0 + float64(c.p2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(c.p1)
	if var1 == 0 {
		return 0
	}
	p := 1048576.0 - float64(adc)
	p = (p - var2/4096.0) * 6250.0 / var1
	var1 = float64(c.p9) * p * p / 2147483648.0
	var2 = p * (float64(c.p8) / 32768.0)
	q := p / 256.0
	var3 := q * q * q * (float64(c.p10) / 131072.0)
	return p + (var1+var2+var3+float64(c.p7)*128.0)/16.0
}

// humidity returns %RH clamped to 0..100.
func (c *bme680Calibration) humidity(adc uint16, fine float64) float64 {
	t := fine / 5120.0
	var1 := float64(adc) - (float64(c.h1)*16.0 + float64(c.h3)/2.0*t)
	var2 := var1 * (float64(c.h2) / 262144.0 * (1.0 + float64(c.h4)/16384.0*t + float64(c.h5)/1048576.0*t*t))
	var3 := float64(c.h6) / 16384.0
	var4 := float64(c.h7) / 2097152.0
	h := var2 + (var3+var4*t)*var2*var2
	return math.Max(0, math.Min(100, h))
}

// gasResistance returns ohms.
func (c *bme680Calibration) gasResistance(adc uint16, gasRange uint8) float64 {
	var1 := 1340.0 + 5.0*float64(c.rangeSwErr)
	var2 := var1 * (1.0 + bme680K1Range[gasRange]/100.0)
	var3 := 1.0 + bme680K2Range[gasRange]/100.0
	return 1.0 / (var3 * 0.000000125 * float64(uint32(1)<<gasRange) * ((float64(adc)-512.0)/var2 + 1.0))
}

// heaterResistance returns the res_heat register value for a target
// temperature in °C.
func (c *bme680Calibration) heaterResistance(target, ambient float64) uint8 {
	if target > 400 {
		target = 400
	}
	var1 := float64(c.gh1)/16.0 + 49.0
	var2 := float64(c.gh2)/32768.0*0.0005 + 0.00235
	var3 := float64(c.gh3) / 1024.0
	var4 := var1 * (1.0 + var2*target)
	var5 := var4 + var3*ambient
	return uint8(3.4 * (var5*(4.0/(4.0+float64(c.resHeatRng)))*(1.0/(1.0+float64(c.resHeatVal)*0.002)) - 25))
}

// bme680GasWait encodes a heater duration into the gas_wait register.
func bme680GasWait(d time.Duration) uint8 {
	ms := d.Milliseconds()
	if ms >= 0xFC0 {
		return 0xFF
	}
	var factor uint8
	for ms > 0x3F {
		ms /= 4
		factor++
	}
	return uint8(ms) + factor*64
}

// BME680 reads temperature, humidity, pressure and gas resistance from a
// BME680 in forced mode. A forced measurement that does not complete fails
// the whole cycle.
type BME680 struct {
	dev    *i2c.Dev
	calib  bme680Calibration
	logger *slog.Logger

	HeaterTempC    float64
	HeaterDuration time.Duration
	AmbientTempC   float64
	SeaLevelHPa    float64
	ResetDelay     time.Duration
	PollInterval   time.Duration
	MeasureTimeout time.Duration
}

// NewBME680 creates a driver for the gas sensor at addr.
func NewBME680(bus i2c.Bus, addr uint16, logger *slog.Logger) *BME680 {
	if addr == 0 {
		addr = BME680Addr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BME680{
		dev:            &i2c.Dev{Bus: bus, Addr: addr},
		logger:         logger,
		HeaterTempC:    320,
		HeaterDuration: 150 * time.Millisecond,
		AmbientTempC:   25,
		SeaLevelHPa:    SeaLevelHPa,
		ResetDelay:     10 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		MeasureTimeout: time.Second,
	}
}

func (s *BME680) Name() string { return "bme680" }

func (s *BME680) readReg(reg byte, buf []byte) error {
	return s.dev.Tx([]byte{reg}, buf)
}

func (s *BME680) writeReg(reg, val byte) error {
	return s.dev.Tx([]byte{reg, val}, nil)
}

// Init checks the chip id, resets the chip, loads its calibration and
// configures oversampling, filter and gas heater.
func (s *BME680) Init(ctx context.Context) error {
	var id [1]byte
	if err := s.readReg(bme680ChipIDReg, id[:]); err != nil {
		return fmt.Errorf("bme680 chip id: %w", err)
	}
	if id[0] != bme680ChipID {
		return fmt.Errorf("%w: bme680 chip id 0x%02X", ErrNoDevice, id[0])
	}
	if err := s.writeReg(bme680ResetReg, bme680ResetCmd); err != nil {
		return fmt.Errorf("bme680 reset: %w", err)
	}
	if err := sleep(ctx, s.ResetDelay); err != nil {
		return err
	}

	coeff := make([]byte, bme680Coeff1Len+bme680Coeff2Len)
	if err := s.readReg(bme680Coeff1Reg, coeff[:bme680Coeff1Len]); err != nil {
		return fmt.Errorf("bme680 calibration: %w", err)
	}
	if err := s.readReg(bme680Coeff2Reg, coeff[bme680Coeff1Len:]); err != nil {
		return fmt.Errorf("bme680 calibration: %w", err)
	}
	s.calib = parseBME680Calibration(coeff)

	var b [1]byte
	if err := s.readReg(bme680ResHeatRng, b[:]); err != nil {
		return fmt.Errorf("bme680 heater range: %w", err)
	}
	s.calib.resHeatRng = (b[0] >> 4) & 0x03
	if err := s.readReg(bme680ResHeatVal, b[:]); err != nil {
		return fmt.Errorf("bme680 heater value: %w", err)
	}
	s.calib.resHeatVal = int8(b[0])
	if err := s.readReg(bme680RangeSwErr, b[:]); err != nil {
		return fmt.Errorf("bme680 range error: %w", err)
	}
	s.calib.rangeSwErr = int8(b[0]&0xF0) >> 4

	config := []struct{ reg, val byte }{
		{bme680CtrlHum, bme680OversampleH},
		{bme680Config, bme680FilterSize3 << 2},
		{bme680CtrlMeas, s.ctrlMeas()},
		{bme680ResHeat0, s.calib.heaterResistance(s.HeaterTempC, s.AmbientTempC)},
		{bme680GasWait0, bme680GasWait(s.HeaterDuration)},
		{bme680CtrlGas1, bme680RunGas},
		{bme680CtrlGas0, 0},
	}
	for _, c := range config {
		if err := s.writeReg(c.reg, c.val); err != nil {
			return fmt.Errorf("bme680 config 0x%02X: %w", c.reg, err)
		}
	}
	return nil
}

func (s *BME680) ctrlMeas() byte {
	return bme680OversampleT<<5 | bme680OversampleP<<2
}

// Read runs one forced measurement and sets T4, H4, P4, A4 and Q4.
func (s *BME680) Read(ctx context.Context, r *wire.Readings) error {
	if err := s.writeReg(bme680CtrlMeas, s.ctrlMeas()|bme680ModeForced); err != nil {
		return fmt.Errorf("%w: bme680 trigger: %w", node.ErrReadFailed, err)
	}

	var field [bme680FieldLen]byte
	deadline := time.Now().Add(s.MeasureTimeout)
	for {
		if err := sleep(ctx, s.PollInterval); err != nil {
			return err
		}
		if err := s.readReg(bme680FieldReg, field[:]); err != nil {
			return fmt.Errorf("%w: bme680 data: %w", node.ErrReadFailed, err)
		}
		if field[0]&bme680NewData != 0 {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: bme680 measurement timed out", node.ErrReadFailed)
		}
	}

	m := decodeBME680Field(field[:])
	temp, fine := s.calib.temperature(m.temp)
	if math.IsNaN(temp) {
		s.logger.Debug("bme680 temperature unavailable")
		return nil
	}
	pa := s.calib.pressure(m.pres, fine)
	hum := s.calib.humidity(m.hum, fine)

	var gas float64
	if m.status&bme680GasValid != 0 {
		gas = s.calib.gasResistance(m.gas, m.gasRange)
	}
	if m.status&bme680HeatStab == 0 {
		s.logger.Debug("bme680 heater not stable")
	}

	hPa := pa / 100
	r.MustSet(wire.TagGasTemp, wire.Deci(temp))
	r.MustSet(wire.TagGasHumidity, wire.Deci(hum))
	r.MustSet(wire.TagGasPressure, wire.Deci(hPa))
	r.MustSet(wire.TagGasAltitude, wire.Whole(Altitude(hPa, s.SeaLevelHPa)))
	r.MustSet(wire.TagGasResistance, wire.Whole(gas/1000))
	return nil
}

type bme680Measurement struct {
	status   byte
	temp     uint32
	pres     uint32
	hum      uint16
	gas      uint16
	gasRange uint8
}

func decodeBME680Field(b []byte) bme680Measurement {
	return bme680Measurement{
		status:   b[0]&bme680NewData | b[14]&(bme680GasValid|bme680HeatStab),
		pres:     uint32(b[2])<<12 | uint32(b[3])<<4 | uint32(b[4])>>4,
		temp:     uint32(b[5])<<12 | uint32(b[6])<<4 | uint32(b[7])>>4,
		hum:      uint16(b[8])<<8 | uint16(b[9]),
		gas:      uint16(b[13])<<2 | uint16(b[14])>>6,
		gasRange: b[14] & 0x0F,
	}
}
