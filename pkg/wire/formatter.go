// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable line
func FormatFrame(f Frame) string {
	payload := f.Payload()
	return fmt.Sprintf("%s (len=%d pad=%d)\n", payload, len(payload), PayloadSize-len(payload))
}

// FormatReadings lists the present readings with their units
func FormatReadings(r *Readings) string {
	fields := r.Fields()
	if len(fields) == 0 {
		return "  (no readings)\n"
	}
	var s strings.Builder
	for _, fld := range fields {
		s.WriteString(fmt.Sprintf("  %-2s %-26s %s\n", fld.Tag, FormatTagName(fld.Tag), FormatValue(fld.Tag, fld.Value)))
	}
	return s.String()
}

// FormatTagName returns the human-readable name for a tag
func FormatTagName(t Tag) string {
	switch t {
	case TagCounter:
		return "Message counter"
	case TagNode:
		return "Node"
	case TagHygroTemp:
		return "Hygrometer temperature"
	case TagHygroHumidity:
		return "Hygrometer humidity"
	case TagProbeTemp:
		return "Probe temperature"
	case TagBaroTemp:
		return "Barometer temperature"
	case TagBaroPressure:
		return "Barometer pressure"
	case TagBaroAltitude:
		return "Barometer altitude"
	case TagGasTemp:
		return "Gas sensor temperature"
	case TagGasHumidity:
		return "Gas sensor humidity"
	case TagGasPressure:
		return "Gas sensor pressure"
	case TagGasAltitude:
		return "Gas sensor altitude"
	case TagGasResistance:
		return "Gas resistance"
	case TagMotion:
		return "Motion"
	case TagVoltage:
		return "Supply voltage"
	default:
		return fmt.Sprintf("UNKNOWN(%s)", string(t))
	}
}

// FormatValue renders a fixed-point wire value in its physical unit
func FormatValue(t Tag, v int) string {
	switch t {
	case TagHygroTemp, TagProbeTemp, TagBaroTemp, TagGasTemp:
		return fmt.Sprintf("%.1f°C", float64(v)/10)
	case TagHygroHumidity, TagGasHumidity:
		return fmt.Sprintf("%.1f%%", float64(v)/10)
	case TagBaroPressure, TagGasPressure:
		return fmt.Sprintf("%.1fhPa", float64(v)/10)
	case TagBaroAltitude, TagGasAltitude:
		return fmt.Sprintf("%dm", v)
	case TagGasResistance:
		return fmt.Sprintf("%dkΩ", v)
	case TagMotion:
		if v != 0 {
			return "detected"
		}
		return "none"
	case TagVoltage:
		return fmt.Sprintf("%.1fV", float64(v)/10)
	default:
		return fmt.Sprintf("%d", v)
	}
}

// HexDump formats raw bytes as uppercase hex pairs, 16 per line
func HexDump(data []byte) string {
	var s strings.Builder
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			s.WriteString("\n")
		}
		s.WriteString(fmt.Sprintf("%02X", b))
		if i%16 != 15 && i != len(data)-1 {
			s.WriteString(" ")
		}
	}
	s.WriteString("\n")
	return s.String()
}
