// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AT modem limits
const (
	ATMaxPayload     = 240 // AT+SEND data limit
	ATMinBandHz      = 433000000
	ATMaxBandHz      = 915000000
	ATMaxPowerDBm    = 15
	ATCommandTimeout = 2 * time.Second
)

// AT response prefixes
const (
	respOK    = "+OK"
	respError = "+ERR="
	respReady = "+READY"
	respRecv  = "+RCV="
)

var modemErrorText = map[int]string{
	1:  "missing CR LF at end of command",
	2:  "command does not start with AT",
	3:  "missing = in command",
	4:  "unknown command",
	10: "transmit timeout",
	11: "receive timeout",
	12: "CRC error",
	13: "transmit data exceeds 240 bytes",
	15: "unknown error",
}

// ModemError is an +ERR response from an AT modem.
type ModemError struct {
	Command string
	Code    int
}

func (e *ModemError) Error() string {
	text, ok := modemErrorText[e.Code]
	if !ok {
		text = "unrecognized error"
	}
	return fmt.Sprintf("modem error %d (%s) on %q", e.Code, text, e.Command)
}

// AT drives a UART LoRa modem that speaks the REYAX AT command set.
type AT struct {
	rw     io.ReadWriteCloser
	logger *slog.Logger

	lines   chan string
	readErr error // valid once lines is closed

	mu      sync.Mutex
	started bool
	cfg     Config

	// Timeout bounds the wait for each command response.
	Timeout time.Duration
}

// NewAT creates a modem driver on rw and starts reading responses.
func NewAT(rw io.ReadWriteCloser, logger *slog.Logger) *AT {
	if logger == nil {
		logger = slog.Default()
	}
	m := &AT{
		rw:      rw,
		logger:  logger,
		lines:   make(chan string, 16),
		Timeout: ATCommandTimeout,
	}
	go m.readLoop()
	return m
}

func (m *AT) readLoop() {
	scanner := bufio.NewScanner(m.rw)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		m.lines <- line
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	m.readErr = err
	close(m.lines)
}

// command sends one AT command and waits for +OK or +ERR.
func (m *AT) command(ctx context.Context, cmd string) error {
	m.logger.Debug("modem command", "cmd", cmd)
	m.drain()
	if _, err := io.WriteString(m.rw, cmd+"\r\n"); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}

	timer := time.NewTimer(m.Timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("no response to %q after %v", cmd, m.Timeout)
		case line, ok := <-m.lines:
			if !ok {
				return fmt.Errorf("modem closed: %w", m.readErr)
			}
			switch {
			case line == respOK:
				return nil
			case strings.HasPrefix(line, respError):
				code, err := strconv.Atoi(strings.TrimPrefix(line, respError))
				if err != nil {
					return fmt.Errorf("malformed modem response %q", line)
				}
				return &ModemError{Command: cmd, Code: code}
			case line == respReady, strings.HasPrefix(line, respRecv):
				m.logger.Debug("unsolicited modem output", "line", line)
			default:
				m.logger.Debug("ignoring modem output", "line", line)
			}
		}
	}
}

// drain discards responses left over from a command that timed out.
func (m *AT) drain() {
	for {
		select {
		case line, ok := <-m.lines:
			if !ok {
				return
			}
			m.logger.Debug("discarding stale modem output", "line", line)
		default:
			return
		}
	}
}

// Begin configures the modem's band, output power and addressing.
func (m *AT) Begin(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	band := int64(math.Round(cfg.FrequencyMHz * 1e6))
	if band < ATMinBandHz || band > ATMaxBandHz {
		return fmt.Errorf("band %d Hz not supported by modem (%d..%d)", band, ATMinBandHz, ATMaxBandHz)
	}
	if cfg.PowerDBm < 0 || cfg.PowerDBm > ATMaxPowerDBm {
		return fmt.Errorf("output power %d dBm not supported by modem (0..%d)", cfg.PowerDBm, ATMaxPowerDBm)
	}

	cmds := []string{
		"AT",
		fmt.Sprintf("AT+BAND=%d", band),
		fmt.Sprintf("AT+CRFOP=%d", cfg.PowerDBm),
		fmt.Sprintf("AT+ADDRESS=%d", cfg.Address),
		fmt.Sprintf("AT+NETWORKID=%d", cfg.NetworkID),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = false
	for _, cmd := range cmds {
		if err := m.command(ctx, cmd); err != nil {
			return err
		}
	}
	m.cfg = cfg
	m.started = true
	m.logger.Info("modem configured", "band_hz", band, "power_dbm", cfg.PowerDBm, "address", cfg.Address)
	return nil
}

// Transmit sends frame to the configured destination address.
func (m *AT) Transmit(ctx context.Context, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrNotStarted
	}
	if err := checkLength(frame, min(m.cfg.MaxPayload, ATMaxPayload)); err != nil {
		return err
	}
	return m.command(ctx, fmt.Sprintf("AT+SEND=%d,%d,%s", m.cfg.Destination, len(frame), frame))
}

// Close closes the underlying port, which also stops the reader.
func (m *AT) Close() error {
	return m.rw.Close()
}
