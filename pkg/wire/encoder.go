// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"errors"
	"fmt"
)

// ErrOverflow is returned when the packet text does not fit in PayloadSize.
// The packet must be dropped, never truncated.
var ErrOverflow = errors.New("packet exceeds payload size")

// Encoder encodes packets into fixed-width frames.
type Encoder struct {
	Filler FillerMode
}

// NewEncoder creates an encoder writing the incremental filler marker.
func NewEncoder() *Encoder {
	return &Encoder{Filler: FillerIncremental}
}

// Encode encodes p into a frame.
func (e *Encoder) Encode(p *Packet) (Frame, error) {
	var f Frame
	if err := e.EncodeTo(&f, p); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// EncodeTo encodes p into f. On error f is left untouched.
func (e *Encoder) EncodeTo(f *Frame, p *Packet) error {
	var b buffer
	writeFields(&b, p)
	if b.overflowed() {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrOverflow, b.len(), PayloadSize)
	}

	e.writeFiller(&b)
	for b.len() < PayloadSize {
		b.writeByte(PadByte)
	}

	copy(f[:PayloadSize], b.data[:])
	f[PayloadSize] = Terminator
	return nil
}

func (e *Encoder) writeFiller(b *buffer) {
	free := b.free()
	if e.Filler == FillerFull {
		if free >= 3 {
			b.writeByte(Separator)
			b.writeByte(FillerTag)
			b.writeByte(KeyValue)
		}
		return
	}
	if free >= 1 {
		b.writeByte(Separator)
	}
	if free >= 2 {
		b.writeByte(FillerTag)
	}
	if free >= 3 {
		b.writeByte(KeyValue)
	}
}

// EncodePacket encodes p with the default encoder.
func EncodePacket(p *Packet) (Frame, error) {
	return NewEncoder().Encode(p)
}

// EncodeFromValues builds and encodes a packet. A nil counter leaves the
// debug counter field out.
func EncodeFromValues(node int32, counter *uint16, r *Readings, voltage int) (Frame, error) {
	p := Packet{Node: node, Voltage: voltage}
	if counter != nil {
		p.HasCounter = true
		p.Counter = *counter
	}
	if r != nil {
		p.Readings = *r
	}
	return EncodePacket(&p)
}

// NaturalLength returns the length of the packet text before padding,
// which may exceed PayloadSize.
func NaturalLength(p *Packet) int {
	var b buffer
	writeFields(&b, p)
	return b.len()
}

// writeFields writes the packet text: marker, optional counter, node id,
// present readings in wire order and the supply voltage.
func writeFields(b *buffer, p *Packet) {
	b.writeByte(Marker)
	if p.HasCounter {
		b.field(TagCounter)
		b.writeInt(int(p.Counter))
	}
	b.field(TagNode)
	b.writeHex(uint32(p.Node))
	for _, fld := range p.Readings.Fields() {
		b.field(fld.Tag)
		b.writeInt(fld.Value)
	}
	b.field(TagVoltage)
	b.writeInt(p.Voltage)
}
