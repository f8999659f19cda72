// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import "bytes"

// Packet holds the values encoded into one frame.
type Packet struct {
	Node       int32 // device identifier, rendered as hex
	HasCounter bool  // debug builds include the message counter
	Counter    uint16
	Readings   Readings
	Voltage    int // supply voltage, already divided to its wire unit
}

// Frame is an encoded packet exactly as it goes on air.
type Frame [FrameSize]byte

// Bytes returns a copy of the frame bytes.
func (f Frame) Bytes() []byte {
	out := make([]byte, FrameSize)
	copy(out, f[:])
	return out
}

// Payload returns the packet text without the filler marker and padding.
// Frames encoded with FillerFull and one or two free bytes carry no marker;
// for those the padding zeros are returned as part of the text.
func (f Frame) Payload() string {
	text := f[:PayloadSize]
	if i := bytes.Index(text, []byte{Separator, FillerTag, KeyValue}); i >= 0 {
		return string(text[:i])
	}
	switch {
	case bytes.HasSuffix(text, []byte{Separator, FillerTag}):
		return string(text[:len(text)-2])
	case bytes.HasSuffix(text, []byte{Separator}):
		return string(text[:len(text)-1])
	}
	return string(text)
}

// String returns the frame text including padding and terminator.
func (f Frame) String() string {
	return string(f[:])
}
