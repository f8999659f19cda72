// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wire implements the sensor node packet protocol.
//
// A packet is a fixed-width ASCII frame of comma separated TAG:value fields.
// The text part is padded to PayloadSize characters and followed by one
// terminator byte, giving a FrameSize byte frame on air. Receivers locate
// fields by scanning for the known two character tags, so the frame carries
// no length prefix.
package wire

// Frame sizing
const (
	PayloadSize = 60              // text characters, padding included
	FrameSize   = PayloadSize + 1 // payload plus terminator byte
)

// Fixed framing characters
const (
	Marker     = 'M' // first character of every packet
	Separator  = ','
	KeyValue   = ':'
	FillerTag  = 'E' // ",E:" marks where padding starts
	PadByte    = '0'
	Terminator = '0' // byte FrameSize-1, overwrites the C string terminator
)

// Tag is a two character field key.
type Tag string

// Field tags. The order of the Tags slice is the order fields are encoded in.
const (
	TagCounter Tag = "I"
	TagNode    Tag = "N"

	TagHygroTemp     Tag = "T1" // hygrometer temperature, deci °C
	TagHygroHumidity Tag = "H1" // hygrometer humidity, deci %
	TagProbeTemp     Tag = "T2" // single-wire probe temperature, deci °C
	TagBaroTemp      Tag = "T3" // barometric temperature, deci °C
	TagBaroPressure  Tag = "P3" // barometric pressure, deci hPa
	TagBaroAltitude  Tag = "A3" // barometric altitude, m
	TagGasTemp       Tag = "T4" // gas sensor temperature, deci °C
	TagGasHumidity   Tag = "H4" // gas sensor humidity, deci %
	TagGasPressure   Tag = "P4" // gas sensor pressure, deci hPa
	TagGasAltitude   Tag = "A4" // gas sensor altitude, m
	TagGasResistance Tag = "Q4" // gas resistance, kΩ
	TagMotion        Tag = "M4" // motion detected, 1
	TagVoltage       Tag = "V1" // supply voltage, always last
)

// Tags lists the reading tags in wire order. TagVoltage is not part of a
// reading set; the encoder appends it after every reading.
var Tags = []Tag{
	TagHygroTemp,
	TagHygroHumidity,
	TagProbeTemp,
	TagBaroTemp,
	TagBaroPressure,
	TagBaroAltitude,
	TagGasTemp,
	TagGasHumidity,
	TagGasPressure,
	TagGasAltitude,
	TagGasResistance,
	TagMotion,
}

// tagIndex returns the wire position of a reading tag, or -1.
func tagIndex(t Tag) int {
	for i, tag := range Tags {
		if tag == t {
			return i
		}
	}
	return -1
}

// FillerMode selects how the ",E:" marker is written before padding.
type FillerMode int

const (
	// FillerIncremental writes ",", ",E" or ",E:" depending on how many
	// bytes are free. This is what deployed nodes send.
	FillerIncremental FillerMode = iota
	// FillerFull writes ",E:" only when at least three bytes are free.
	FillerFull
)
