// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Thermoquad/sensornode/pkg/config"
	"github.com/Thermoquad/sensornode/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	// Profile and logging flags
	configPath string
	logLevel   string
	logFormat  string

	// Radio selection flags
	radioKind string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// MQTT bridge flags
	mqttBroker string
)

// Loaded by the root command before any subcommand runs
var (
	profile config.Profile
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sensornode",
	Short: "Sub-GHz Sensor Node",
	Long: `Sensornode - a battery-powered sub-GHz sensor node and its bench tools.

The node resolves its identifier from persistent storage, samples the attached
sensors, encodes the readings into a fixed 61-byte ASCII frame, hands the frame
to the radio and powers down until the next cycle.

Node settings come from a YAML profile (--config); flags override the profile.

Radio modes:
  AT modem:  --radio at --port /dev/ttyUSB0 [--baud 115200]
  Serial:    --radio serial --port /dev/ttyUSB0
  WebSocket: --radio websocket --url ws://host/path [--username user]
  MQTT:      --radio mqtt --broker tcp://host:1883
  Recorder:  --radio recorder

For WebSocket and MQTT authentication, the password is read from the
SENSORNODE_PASSWORD environment variable, or prompted interactively if not set.
The --password flag is intentionally not provided to avoid leaking credentials
in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadProfile,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Node profile (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format (text, json)")

	rootCmd.PersistentFlags().StringVarP(&radioKind, "radio", "r", "", "Radio kind (at, serial, websocket, mqtt, recorder)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth or MQTT")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&mqttBroker, "broker", "", "MQTT broker (tcp://host:1883)")
}

// loadProfile reads the profile, applies flag overrides and builds the
// logger.
func loadProfile(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger, err = logging.New(logging.Options{Level: level, Format: logFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	profile = config.Default()
	if configPath != "" {
		profile, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("radio") {
		profile.Radio.Kind = radioKind
	}
	if flags.Changed("port") {
		profile.Radio.Port = portName
	}
	if flags.Changed("baud") {
		profile.Radio.Baud = baudRate
	}
	if flags.Changed("url") {
		profile.Radio.URL = wsURL
		if !flags.Changed("radio") {
			profile.Radio.Kind = config.RadioWebSocket
		}
	}
	if flags.Changed("username") {
		profile.Radio.Username = wsUsername
		profile.Radio.MQTT.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		profile.Radio.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("broker") {
		profile.Radio.MQTT.Broker = mqttBroker
		if !flags.Changed("radio") {
			profile.Radio.Kind = config.RadioMQTT
		}
	}

	logger.Debug("profile loaded", "name", profile.Name, "radio", profile.Radio.Kind, "sensors", profile.Sensors)
	return nil
}

// validateProfile checks the profile once subcommand flags are applied.
func validateProfile() error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile:\n%w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
