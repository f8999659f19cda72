// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"fmt"
	"strings"
)

// AnomalyType represents a structural defect in a frame
type AnomalyType int

const (
	AnomalyLength AnomalyType = iota
	AnomalyTerminator
	AnomalyMarker
	AnomalyCharacter
	AnomalyField
	AnomalyOrder
	AnomalyMissingField
	AnomalyPadding
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks the framing rules of an encoded frame: size,
// terminator, marker, field syntax and order, and padding. It does not
// interpret field values.
// Returns a slice of validation errors (empty if the frame is well formed)
func ValidateFrame(data []byte) []ValidationError {
	if len(data) != FrameSize {
		return []ValidationError{{
			Type:    AnomalyLength,
			Message: fmt.Sprintf("frame length %d (expected %d)", len(data), FrameSize),
			Details: map[string]interface{}{"length": len(data), "expected": FrameSize},
		}}
	}

	errors := []ValidationError{}

	if data[FrameSize-1] != Terminator {
		errors = append(errors, ValidationError{
			Type:    AnomalyTerminator,
			Message: fmt.Sprintf("terminator byte 0x%02X (expected '%c')", data[FrameSize-1], Terminator),
			Details: map[string]interface{}{"byte": data[FrameSize-1]},
		})
	}

	for i, c := range data[:PayloadSize] {
		if c < 0x20 || c > 0x7E {
			errors = append(errors, ValidationError{
				Type:    AnomalyCharacter,
				Message: fmt.Sprintf("non-printable byte 0x%02X at offset %d", c, i),
				Details: map[string]interface{}{"offset": i, "byte": c},
			})
			return errors
		}
	}

	var f Frame
	copy(f[:], data)
	text := f.Payload()
	errors = append(errors, validateFields(text)...)
	errors = append(errors, validatePadding(string(data[len(text):PayloadSize]))...)

	return errors
}

// validateFields checks "M[,I:n],N:hex[,TAG:n...],V1:n"
func validateFields(text string) []ValidationError {
	parts := strings.Split(text, string(Separator))
	if parts[0] != string(Marker) {
		return []ValidationError{{
			Type:    AnomalyMarker,
			Message: fmt.Sprintf("packet starts with %q (expected %q)", parts[0], string(Marker)),
		}}
	}

	errors := []ValidationError{}
	parts = parts[1:]

	if len(parts) > 0 && strings.HasPrefix(parts[0], string(TagCounter)+string(KeyValue)) {
		if !isDigits(parts[0][2:], false) {
			errors = append(errors, fieldError(parts[0]))
		}
		parts = parts[1:]
	}

	if len(parts) == 0 || !strings.HasPrefix(parts[0], string(TagNode)+string(KeyValue)) {
		return append(errors, ValidationError{
			Type:    AnomalyMissingField,
			Message: "missing node field N",
			Details: map[string]interface{}{"tag": string(TagNode)},
		})
	}
	if !isHex(parts[0][2:]) {
		errors = append(errors, fieldError(parts[0]))
	}
	parts = parts[1:]

	if len(parts) == 0 || !strings.HasPrefix(parts[len(parts)-1], string(TagVoltage)+string(KeyValue)) {
		return append(errors, ValidationError{
			Type:    AnomalyMissingField,
			Message: "missing voltage field V1 at end of packet",
			Details: map[string]interface{}{"tag": string(TagVoltage)},
		})
	}
	if !isDigits(parts[len(parts)-1][3:], true) {
		errors = append(errors, fieldError(parts[len(parts)-1]))
	}
	parts = parts[:len(parts)-1]

	last := -1
	for _, part := range parts {
		if len(part) < 4 || part[2] != KeyValue || !isDigits(part[3:], true) {
			errors = append(errors, fieldError(part))
			continue
		}
		idx := tagIndex(Tag(part[:2]))
		if idx < 0 {
			errors = append(errors, fieldError(part))
			continue
		}
		if idx <= last {
			errors = append(errors, ValidationError{
				Type:    AnomalyOrder,
				Message: fmt.Sprintf("field %s out of order", part[:2]),
				Details: map[string]interface{}{"tag": part[:2]},
			})
		}
		last = idx
	}

	return errors
}

// validatePadding checks that the tail is a filler marker prefix followed by zeros
func validatePadding(tail string) []ValidationError {
	marker := string([]byte{Separator, FillerTag, KeyValue})
	for i := len(marker); i > 0; i-- {
		if strings.HasPrefix(tail, marker[:i]) {
			tail = tail[i:]
			break
		}
	}
	if strings.Trim(tail, string(PadByte)) != "" {
		return []ValidationError{{
			Type:    AnomalyPadding,
			Message: fmt.Sprintf("padding contains %q", tail),
			Details: map[string]interface{}{"padding": tail},
		}}
	}
	return nil
}

func fieldError(part string) ValidationError {
	return ValidationError{
		Type:    AnomalyField,
		Message: fmt.Sprintf("malformed field %q", part),
		Details: map[string]interface{}{"field": part},
	}
}

func isDigits(s string, signed bool) bool {
	if signed && strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
