// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import "strconv"

// buffer assembles packet text in a fixed array. Writes past the end are
// counted but dropped, so the natural length of an oversize packet is still
// known after assembly.
type buffer struct {
	data [PayloadSize]byte
	n    int // natural length, may exceed PayloadSize
}

func (b *buffer) writeByte(c byte) {
	if b.n < len(b.data) {
		b.data[b.n] = c
	}
	b.n++
}

func (b *buffer) writeString(s string) {
	for i := 0; i < len(s); i++ {
		b.writeByte(s[i])
	}
}

func (b *buffer) writeInt(v int) {
	var tmp [20]byte
	b.writeBytes(strconv.AppendInt(tmp[:0], int64(v), 10))
}

// writeHex writes v as uppercase hexadecimal without leading zeros.
func (b *buffer) writeHex(v uint32) {
	const digits = "0123456789ABCDEF"
	var tmp [8]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = digits[v&0xF]
		v >>= 4
		if v == 0 {
			break
		}
	}
	b.writeBytes(tmp[i:])
}

func (b *buffer) writeBytes(p []byte) {
	for _, c := range p {
		b.writeByte(c)
	}
}

// field writes ",<tag>:".
func (b *buffer) field(tag Tag) {
	b.writeByte(Separator)
	b.writeString(string(tag))
	b.writeByte(KeyValue)
}

func (b *buffer) len() int {
	return b.n
}

func (b *buffer) overflowed() bool {
	return b.n > len(b.data)
}

func (b *buffer) free() int {
	return len(b.data) - b.n
}
