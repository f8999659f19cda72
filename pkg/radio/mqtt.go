// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures the MQTT bridge.
type MQTTOptions struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	Prefix   string // topic prefix, frames go to <prefix>/<node>/frame
	Node     string // node identifier as it appears in the N field
	QoS      byte
}

// MQTT publishes frames to a broker, standing in for the air interface on
// bench setups where a gateway consumes the same topic.
type MQTT struct {
	client mqtt.Client
	opts   MQTTOptions
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	started   bool
	max       int
}

// NewMQTT creates an MQTT transmitter. The connection is made by Begin.
func NewMQTT(opts MQTTOptions, logger *slog.Logger) (*MQTT, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("sensornode-%s-%d", opts.Node, time.Now().Unix())
	}
	if opts.Prefix == "" {
		opts.Prefix = "sensornode"
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &MQTT{opts: opts, logger: logger}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}

	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.SetOnConnectHandler(func(_ mqtt.Client) {
		m.setConnected(true)
		logger.Info("mqtt connected", "broker", opts.Broker)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	m.client = mqtt.NewClient(co)
	return m, nil
}

// Topic returns the topic frames are published to.
func (m *MQTT) Topic() string {
	return fmt.Sprintf("%s/%s/frame", m.opts.Prefix, m.opts.Node)
}

// Begin connects to the broker, waiting until connected or ctx is done.
func (m *MQTT) Begin(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if !m.isConnected() {
		token := m.client.Connect()
		const poll = 200 * time.Millisecond
		for !token.WaitTimeout(poll) {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		m.setConnected(true)
	}

	m.mu.Lock()
	m.max = cfg.MaxPayload
	m.started = true
	m.mu.Unlock()
	return nil
}

// Transmit publishes frame and waits for the broker to accept it.
func (m *MQTT) Transmit(ctx context.Context, frame []byte) error {
	m.mu.Lock()
	started, max := m.started, m.max
	m.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	if err := checkLength(frame, max); err != nil {
		return err
	}
	if !m.isConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := m.Topic()
	token := m.client.Publish(topic, m.opts.QoS, false, frame)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}

	m.logger.Debug("published frame", "topic", topic, "bytes", len(frame))
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	m.setConnected(false)
	return nil
}

func (m *MQTT) isConnected() bool {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()
	return connected && m.client.IsConnected()
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}
