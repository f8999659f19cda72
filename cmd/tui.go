// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/wire"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// TUI model
type model struct {
	profileName string
	id          node.DeviceID
	connInfo    string
	motion      bool
	stats       *node.Statistics

	state        string
	lastReadings wire.Readings
	hasReadings  bool
	lastFrame    string
	sleep        node.SleepRequest
	sleepingAt   time.Time
	sleeping     bool
	done         bool
	doneErr      error

	spinner       spinner.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type nodeEventMsg node.Event
type nodeDoneMsg struct {
	err error
}

// formatUptime formats a duration to a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(profileName string, id node.DeviceID, connInfo string, stats *node.Statistics, motion bool) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return model{
		profileName:   profileName,
		id:            id,
		connInfo:      connInfo,
		motion:        motion,
		stats:         stats,
		state:         node.StateInit.String(),
		spinner:       sp,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case nodeEventMsg:
		m.handleEvent(node.Event(msg))

	case nodeDoneMsg:
		m.done = true
		m.doneErr = msg.err
		m.state = "stopped"
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.addLogEntry(fmt.Sprintf("Node stopped: %v", msg.err), true)
		} else {
			m.addLogEntry("Node stopped", false)
		}
	}

	return m, nil
}

// handleEvent updates the dashboard from a controller event
func (m *model) handleEvent(e node.Event) {
	switch e.Kind {
	case node.EventInit:
		m.state = node.StateReady.String()
		m.addLogEntry("Radio and sensors initialized", false)

	case node.EventInitFailed:
		m.state = node.StateInit.String()
		m.addLogEntry(fmt.Sprintf("INIT FAILED: %v", e.Err), true)

	case node.EventReadFailed:
		m.state = node.StateSample.String()
		m.addLogEntry(fmt.Sprintf("READ FAILED: %v", e.Err), true)

	case node.EventOverflow:
		m.state = node.StateEncode.String()
		m.addLogEntry(fmt.Sprintf("OVERFLOW: %v", e.Err), true)

	case node.EventTransmit:
		m.state = node.StateTransmit.String()
		m.lastReadings = e.Readings
		m.hasReadings = true
		if e.Frame != nil {
			m.lastFrame = e.Frame.Payload()
		}
		m.addLogEntry("TX "+m.lastFrame, false)

	case node.EventTransmitFailed:
		m.state = node.StateTransmit.String()
		m.lastReadings = e.Readings
		m.hasReadings = true
		m.addLogEntry(fmt.Sprintf("TX FAILED: %v", e.Err), true)

	case node.EventSleep:
		m.state = node.StateSleep.String()
		m.sleep = e.Sleep
		m.sleeping = true
		m.sleepingAt = e.Time

	case node.EventWake:
		m.sleeping = false
		m.state = node.StateReady.String()
		if e.Sleep.Kind == node.SleepForever && e.Err == nil {
			m.addLogEntry("Woken by motion", false)
		}
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SENSORNODE - " + strings.ToUpper(m.profileName)))
	s.WriteString("\n")
	wake := "Timer"
	if m.motion {
		wake = "Motion"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("Node: %s | %s | Wake-up: %s | 'r' reset stats | 'q' quit",
		m.id, m.connInfo, wake)))
	s.WriteString("\n\n")

	// Node state
	switch {
	case m.done:
		s.WriteString(warningStyle.Render("■ Stopped"))
	case m.sleeping:
		s.WriteString(m.spinner.View())
		s.WriteString(statsValueStyle.Render(fmt.Sprintf(" Sleeping (%s)", m.sleep)))
		s.WriteString(headerStyle.Render(fmt.Sprintf(" for %s", formatUptime(time.Since(m.sleepingAt)))))
	default:
		s.WriteString(m.spinner.View())
		s.WriteString(statsValueStyle.Render(" " + strings.ToUpper(m.state)))
	}
	s.WriteString("\n\n")

	// Statistics
	snap := m.stats.Snapshot()
	var txPercent float64
	if snap.Cycles > 0 {
		txPercent = float64(snap.Transmitted) * 100.0 / float64(snap.Cycles)
	}
	failures := snap.TransmitErrors + snap.ReadFailures + snap.Overflows

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Cycles:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.Cycles)),
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", snap.Transmitted, txPercent)),
		statsLabelStyle.Render("Failed:"), func() string {
			if failures > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", failures))
			}
			return statsValueStyle.Render("0")
		}(),
	))

	if failures > 0 || snap.InitFailures > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   %s %d\n",
			headerStyle.Render("tx errors"), snap.TransmitErrors,
			headerStyle.Render("read failures"), snap.ReadFailures,
			headerStyle.Render("overflows"), snap.Overflows,
			headerStyle.Render("init failures"), snap.InitFailures,
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Quanta:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.QuantumSleeps)),
		statsLabelStyle.Render("Wake-ups:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.ForeverSleeps)),
		statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(time.Since(snap.StartTime))),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Readings section (only shown after the first cycle)
	if m.hasReadings {
		s.WriteString(statsLabelStyle.Render("Latest Readings:"))
		s.WriteString("\n")

		readingsContent := strings.Builder{}
		fields := m.lastReadings.Fields()
		if len(fields) == 0 {
			readingsContent.WriteString(headerStyle.Render("(no readings)"))
			readingsContent.WriteString("\n")
		}
		for _, f := range fields {
			readingsContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render(fmt.Sprintf("%-2s %-24s", f.Tag, wire.FormatTagName(f.Tag))),
				statsValueStyle.Render(wire.FormatValue(f.Tag, f.Value)),
			))
		}
		if m.lastFrame != "" {
			readingsContent.WriteString(fmt.Sprintf("%s %s",
				statsLabelStyle.Render("Frame:"), headerStyle.Render(m.lastFrame),
			))
		}

		s.WriteString(boxStyle.Render(readingsContent.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 20 // Reserve space for header, stats and readings
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
