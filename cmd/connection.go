// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/sensornode/pkg/config"
	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/radio"
	"github.com/Thermoquad/sensornode/pkg/sensors"
	"github.com/Thermoquad/sensornode/pkg/storage"
	"golang.org/x/term"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// passwordEnv holds the WebSocket or MQTT password
const passwordEnv = "SENSORNODE_PASSWORD"

// Radio is a transmitter the command line can shut down.
type Radio interface {
	node.Radio
	Close() error
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenRadio creates the transmitter selected by the profile. The returned
// string describes the connection for banners.
func OpenRadio(ctx context.Context, p config.RadioProfile, id node.DeviceID) (Radio, string, error) {
	switch p.Kind {
	case config.RadioAT:
		conn, err := radio.OpenSerial(p.Port, p.Baud)
		if err != nil {
			return nil, "", err
		}
		m := radio.NewAT(conn, logger)
		if p.ModemTimeout > 0 {
			m.Timeout = time.Duration(p.ModemTimeout)
		}
		return m, fmt.Sprintf("AT modem: %s @ %d baud", p.Port, p.Baud), nil

	case config.RadioSerial:
		conn, err := radio.OpenSerial(p.Port, p.Baud)
		if err != nil {
			return nil, "", err
		}
		return radio.NewLink(conn), fmt.Sprintf("Serial: %s @ %d baud", p.Port, p.Baud), nil

	case config.RadioWebSocket:
		password := ""
		if p.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		conn, err := radio.DialWebSocket(ctx, radio.WebSocketOptions{
			URL:           p.URL,
			Username:      p.Username,
			Password:      password,
			SkipSSLVerify: p.NoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return radio.NewLink(conn), fmt.Sprintf("WebSocket: %s", p.URL), nil

	case config.RadioMQTT:
		password := ""
		if p.MQTT.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		m, err := radio.NewMQTT(radio.MQTTOptions{
			Broker:   p.MQTT.Broker,
			ClientID: p.MQTT.ClientID,
			Username: p.MQTT.Username,
			Password: password,
			Prefix:   p.MQTT.Prefix,
			Node:     id.String(),
			QoS:      p.MQTT.QoS,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return m, fmt.Sprintf("MQTT: %s -> %s", p.MQTT.Broker, m.Topic()), nil

	case config.RadioRecorder:
		return radio.NewRecorder(), "Recorder (dry run)", nil
	}

	return nil, "", fmt.Errorf("unknown radio kind %q", p.Kind)
}

// OpenStorage opens the persistent memory holding the node identifier.
func OpenStorage(p config.StorageProfile) (storage.Memory, string, error) {
	switch p.Kind {
	case config.StorageFile:
		m, err := storage.OpenFile(p.Path, p.Size)
		if err != nil {
			return nil, "", err
		}
		return m, fmt.Sprintf("EEPROM image: %s (%d bytes)", p.Path, m.Size()), nil

	case config.StorageBolt:
		name := p.Profile
		if name == "" {
			name = profile.Name
		}
		m, err := storage.OpenBolt(p.Path, name, p.Size)
		if err != nil {
			return nil, "", err
		}
		return m, fmt.Sprintf("Bolt: %s [%s]", p.Path, name), nil

	case config.StorageAT24:
		if _, err := host.Init(); err != nil {
			return nil, "", fmt.Errorf("host.Init: %w", err)
		}
		bus, err := i2creg.Open(p.I2CBus)
		if err != nil {
			return nil, "", fmt.Errorf("i2creg.Open: %w", err)
		}
		m := storage.NewAT24(bus, p.Addr, p.Size, 0)
		return &busMemory{Memory: m, close: bus.Close}, fmt.Sprintf("AT24: %s @ 0x%02X", bus, p.Addr), nil

	case config.StorageMemory:
		return storage.NewMem(p.Size), "Memory (erased)", nil
	}

	return nil, "", fmt.Errorf("unknown storage kind %q", p.Kind)
}

// busMemory closes the I2C bus along with the memory on it
type busMemory struct {
	storage.Memory
	close func() error
}

func (b *busMemory) Close() error {
	b.Memory.Close()
	return b.close()
}

// OpenSupply returns the voltage source selected by the profile, or nil.
func OpenSupply(p config.SupplyProfile) node.VoltageSource {
	switch p.Kind {
	case config.SupplySysfs:
		return sensors.SysfsSupply{Path: p.Path}
	case config.SupplyFixed:
		return sensors.FixedSupply{MV: p.Millivolts}
	default:
		return nil
	}
}
