// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package radio provides transmitters for encoded frames: an AT-command UART
// modem, a transparent byte link (serial or WebSocket bridge), an MQTT
// bridge and an in-memory recorder.
package radio

import (
	"errors"
	"fmt"
)

// ErrPacketTooLong is returned when a frame exceeds the transceiver's payload
// limit. This is a hardware limit, separate from the packet protocol size.
var ErrPacketTooLong = errors.New("packet too long for transceiver")

// ErrNotStarted is returned by Transmit before a successful Begin.
var ErrNotStarted = errors.New("radio not started")

// Defaults of the deployed CC1101 nodes
const (
	DefaultFrequencyMHz   = 868.32
	DefaultBitRateKbps    = 48.0
	DefaultFreqDevKHz     = 48.0
	DefaultRxBandwidthKHz = 135.0
	DefaultPowerDBm       = 10
	DefaultPreambleLength = 16
	DefaultSyncWord       = 0x12AD
	DefaultMaxPayload     = 64 // CC1101 FIFO
)

// Config holds transceiver settings applied by Begin.
type Config struct {
	FrequencyMHz   float64 `yaml:"frequency_mhz"`
	BitRateKbps    float64 `yaml:"bit_rate_kbps"`
	FreqDevKHz     float64 `yaml:"freq_dev_khz"`
	RxBandwidthKHz float64 `yaml:"rx_bandwidth_khz"`
	PowerDBm       int     `yaml:"power_dbm"`
	PreambleLength int     `yaml:"preamble_length"`
	SyncWord       uint16  `yaml:"sync_word"`
	MaxPayload     int     `yaml:"max_payload"`

	// Modem addressing, used by AT-command modems only
	Address     uint16 `yaml:"address"`
	NetworkID   uint8  `yaml:"network_id"`
	Destination uint16 `yaml:"destination"`
}

// DefaultConfig returns the settings of the deployed nodes.
func DefaultConfig() Config {
	return Config{
		FrequencyMHz:   DefaultFrequencyMHz,
		BitRateKbps:    DefaultBitRateKbps,
		FreqDevKHz:     DefaultFreqDevKHz,
		RxBandwidthKHz: DefaultRxBandwidthKHz,
		PowerDBm:       DefaultPowerDBm,
		PreambleLength: DefaultPreambleLength,
		SyncWord:       DefaultSyncWord,
		MaxPayload:     DefaultMaxPayload,
	}
}

// Validate checks the ranges accepted by the supported transceivers.
func (c Config) Validate() error {
	if c.FrequencyMHz < 300 || c.FrequencyMHz > 928 {
		return fmt.Errorf("frequency %.2f MHz out of sub-GHz range", c.FrequencyMHz)
	}
	if c.PowerDBm < -30 || c.PowerDBm > 20 {
		return fmt.Errorf("output power %d dBm out of range (-30..20)", c.PowerDBm)
	}
	if c.MaxPayload <= 0 || c.MaxPayload > 255 {
		return fmt.Errorf("max payload %d out of range (1..255)", c.MaxPayload)
	}
	if c.NetworkID > 16 {
		return fmt.Errorf("network id %d out of range (0..16)", c.NetworkID)
	}
	return nil
}

func checkLength(frame []byte, max int) error {
	if len(frame) > max {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPacketTooLong, len(frame), max)
	}
	return nil
}
