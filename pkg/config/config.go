// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads node profiles: which radio, sensors, storage and
// power settings a node runs with.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/platform"
	"github.com/Thermoquad/sensornode/pkg/radio"
	"github.com/Thermoquad/sensornode/pkg/sensors"
	"github.com/Thermoquad/sensornode/pkg/storage"
	"gopkg.in/yaml.v3"
)

// Radio kinds
const (
	RadioAT        = "at"        // AT-command UART modem
	RadioSerial    = "serial"    // transparent serial link
	RadioWebSocket = "websocket" // WebSocket radio bridge
	RadioMQTT      = "mqtt"      // MQTT bridge
	RadioRecorder  = "recorder"  // in-memory, dry runs
)

// Storage kinds
const (
	StorageFile   = "file"
	StorageBolt   = "bolt"
	StorageAT24   = "at24"
	StorageMemory = "memory"
)

// Supply kinds
const (
	SupplySysfs = "sysfs"
	SupplyFixed = "fixed"
	SupplyNone  = "none"
)

// Profile describes one node.
type Profile struct {
	Name    string         `yaml:"name"`
	Debug   bool           `yaml:"debug"`
	Radio   RadioProfile   `yaml:"radio"`
	Sensors []string       `yaml:"sensors"`
	Host    HostProfile    `yaml:"host"`
	Storage StorageProfile `yaml:"storage"`
	Supply  SupplyProfile  `yaml:"supply"`
	Power   PowerProfile   `yaml:"power"`
}

// RadioProfile selects the transmitter and its settings.
type RadioProfile struct {
	Kind         string       `yaml:"kind"`
	Port         string       `yaml:"port"`
	Baud         int          `yaml:"baud"`
	URL          string       `yaml:"url"`
	Username     string       `yaml:"username"`
	NoSSLVerify  bool         `yaml:"no_ssl_verify"`
	Transceiver  radio.Config `yaml:"transceiver"`
	MQTT         MQTTProfile  `yaml:"mqtt"`
	ModemTimeout Duration     `yaml:"modem_timeout"`
}

// MQTTProfile configures the MQTT bridge. The password comes from the
// environment, never from the profile.
type MQTTProfile struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Prefix   string `yaml:"prefix"`
	QoS      byte   `yaml:"qos"`
}

// HostProfile names the buses sensors are attached to.
type HostProfile struct {
	I2CBus      string  `yaml:"i2c_bus"`
	OneWireBus  string  `yaml:"onewire_bus"`
	MotionPin   string  `yaml:"motion_pin"`
	BMP280Addr  uint16  `yaml:"bmp280_addr"`
	BME680Addr  uint16  `yaml:"bme680_addr"`
	ProbeBits   int     `yaml:"probe_bits"`
	SeaLevelHPa float64 `yaml:"sea_level_hpa"`
}

// StorageProfile selects where the identifier is read from.
type StorageProfile struct {
	Kind    string `yaml:"kind"`
	Path    string `yaml:"path"`
	Profile string `yaml:"profile"` // bolt image key
	Size    int    `yaml:"size"`
	I2CBus  string `yaml:"i2c_bus"`
	Addr    uint16 `yaml:"addr"`
}

// SupplyProfile selects the voltage source.
type SupplyProfile struct {
	Kind       string `yaml:"kind"`
	Path       string `yaml:"path"`
	Millivolts int    `yaml:"millivolts"`
}

// PowerProfile holds the duty-cycle timing.
type PowerProfile struct {
	LongSleepMinutes int      `yaml:"long_sleep_minutes"`
	Quantum          Duration `yaml:"quantum"`
	SettleDelay      Duration `yaml:"settle_delay"`
	TimeScale        float64  `yaml:"time_scale"`
}

// Duration is a time.Duration written as "8s" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the profile of the deployed nodes.
func Default() Profile {
	return Profile{
		Name: "default",
		Radio: RadioProfile{
			Kind:         RadioAT,
			Baud:         115200,
			Transceiver:  radio.DefaultConfig(),
			ModemTimeout: Duration(2 * time.Second),
			MQTT: MQTTProfile{
				Prefix: "sensornode",
			},
		},
		Sensors: []string{string(sensors.KindSi7021)},
		Host: HostProfile{
			ProbeBits:   12,
			SeaLevelHPa: sensors.SeaLevelHPa,
		},
		Storage: StorageProfile{
			Kind: StorageFile,
			Path: "eeprom.bin",
			Size: storage.DefaultSize,
		},
		Supply: SupplyProfile{
			Kind: SupplySysfs,
			Path: sensors.DefaultSupplyPath,
		},
		Power: PowerProfile{
			LongSleepMinutes: node.DefaultLongSleep,
			Quantum:          Duration(platform.DefaultQuantum),
			SettleDelay:      Duration(100 * time.Millisecond),
			TimeScale:        1,
		},
	}
}

// Load reads a profile from path, starting from Default.
func Load(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()
	p, err := Decode(f)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Decode reads a profile, starting from Default. Unknown keys are errors.
// The result is not validated; command line overrides are applied first.
func Decode(r io.Reader) (Profile, error) {
	p := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

// Encode writes p as YAML.
func (p Profile) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}

// String returns p as YAML.
func (p Profile) String() string {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return err.Error()
	}
	return buf.String()
}

// SensorKinds parses the sensor list.
func (p Profile) SensorKinds() ([]sensors.Kind, error) {
	kinds := make([]sensors.Kind, 0, len(p.Sensors))
	seen := make(map[sensors.Kind]bool)
	for _, s := range p.Sensors {
		k, err := sensors.ParseKind(s)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			return nil, fmt.Errorf("sensor %q listed twice", s)
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// HostOptions converts the host section for sensors.Open.
func (p Profile) HostOptions() sensors.HostOptions {
	return sensors.HostOptions{
		I2CBus:      p.Host.I2CBus,
		OneWireBus:  p.Host.OneWireBus,
		MotionPin:   p.Host.MotionPin,
		BMP280Addr:  p.Host.BMP280Addr,
		BME680Addr:  p.Host.BME680Addr,
		ProbeBits:   p.Host.ProbeBits,
		SeaLevelHPa: p.Host.SeaLevelHPa,
	}
}

// Validate checks the profile for values the node cannot run with.
func (p Profile) Validate() error {
	var errs []error

	switch p.Radio.Kind {
	case RadioAT, RadioSerial:
		if p.Radio.Port == "" {
			errs = append(errs, fmt.Errorf("radio: %s radio requires a port", p.Radio.Kind))
		}
		if p.Radio.Baud <= 0 {
			errs = append(errs, fmt.Errorf("radio: invalid baud rate %d", p.Radio.Baud))
		}
	case RadioWebSocket:
		if p.Radio.URL == "" {
			errs = append(errs, errors.New("radio: websocket radio requires a url"))
		}
	case RadioMQTT:
		if p.Radio.MQTT.Broker == "" {
			errs = append(errs, errors.New("radio: mqtt radio requires a broker"))
		}
		if p.Radio.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("radio: invalid mqtt qos %d", p.Radio.MQTT.QoS))
		}
	case RadioRecorder:
	default:
		errs = append(errs, fmt.Errorf("radio: unknown kind %q", p.Radio.Kind))
	}
	if err := p.Radio.Transceiver.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("radio: %w", err))
	}

	if _, err := p.SensorKinds(); err != nil {
		errs = append(errs, fmt.Errorf("sensors: %w", err))
	}

	switch p.Storage.Kind {
	case StorageFile, StorageBolt:
		if p.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage: %s storage requires a path", p.Storage.Kind))
		}
	case StorageAT24, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown kind %q", p.Storage.Kind))
	}

	switch p.Supply.Kind {
	case SupplySysfs, SupplyNone:
	case SupplyFixed:
		if p.Supply.Millivolts < 0 {
			errs = append(errs, fmt.Errorf("supply: negative voltage %d mV", p.Supply.Millivolts))
		}
	default:
		errs = append(errs, fmt.Errorf("supply: unknown kind %q", p.Supply.Kind))
	}

	if p.Power.LongSleepMinutes < node.MinSleepMinutes || p.Power.LongSleepMinutes > node.MaxSleepMinutes {
		errs = append(errs, fmt.Errorf("power: long sleep %d min out of range (%d..%d)",
			p.Power.LongSleepMinutes, node.MinSleepMinutes, node.MaxSleepMinutes))
	}
	if p.Power.Quantum <= 0 {
		errs = append(errs, errors.New("power: quantum must be positive"))
	}
	if p.Power.TimeScale < 0 {
		errs = append(errs, fmt.Errorf("power: negative time scale %g", p.Power.TimeScale))
	}

	return errors.Join(errs...)
}
