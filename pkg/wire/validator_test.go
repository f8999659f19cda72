package wire

import (
	"strings"
	"testing"
)

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantType AnomalyType
		wantOK   bool
	}{
		{
			name:   "encoded frame",
			data:   []byte(frameText("M,N:AB,T1:213,H1:556,V1:3,E:")),
			wantOK: true,
		},
		{
			name:     "short frame",
			data:     []byte("M,N:AB,V1:3"),
			wantType: AnomalyLength,
		},
		{
			name:     "nul terminator",
			data:     append([]byte(frameText("M,N:AB,V1:3,E:"))[:PayloadSize], 0x00),
			wantType: AnomalyTerminator,
		},
		{
			name:     "wrong marker",
			data:     []byte(frameText("X,N:AB,V1:3,E:")),
			wantType: AnomalyMarker,
		},
		{
			name:     "missing node",
			data:     []byte(frameText("M,T1:213,V1:3,E:")),
			wantType: AnomalyMissingField,
		},
		{
			name:     "missing voltage",
			data:     []byte(frameText("M,N:AB,T1:213,E:")),
			wantType: AnomalyMissingField,
		},
		{
			name:     "fields out of order",
			data:     []byte(frameText("M,N:AB,H1:556,T1:213,V1:3,E:")),
			wantType: AnomalyOrder,
		},
		{
			name:     "lowercase hex id",
			data:     []byte(frameText("M,N:ab,V1:3,E:")),
			wantType: AnomalyField,
		},
		{
			name:     "unknown tag",
			data:     []byte(frameText("M,N:AB,X9:1,V1:3,E:")),
			wantType: AnomalyField,
		},
		{
			name:     "garbage in padding",
			data:     []byte("M,N:AB,V1:3,E:" + strings.Repeat("0", 40) + "x" + strings.Repeat("0", 5) + "0"),
			wantType: AnomalyPadding,
		},
		{
			name:     "control character",
			data:     []byte(frameText("M,N:AB,V1:3\n,E:")),
			wantType: AnomalyCharacter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateFrame(tt.data)
			if tt.wantOK {
				if len(errs) != 0 {
					t.Errorf("expected no errors, got %v", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}
			found := false
			for _, e := range errs {
				if e.Type == tt.wantType {
					found = true
				}
			}
			if !found {
				t.Errorf("expected anomaly %d, got %v", tt.wantType, errs)
			}
		})
	}
}

func TestFrame_Payload(t *testing.T) {
	var f Frame
	copy(f[:], frameText("M,N:1,V1:3,E:"))
	if got := f.Payload(); got != "M,N:1,V1:3" {
		t.Errorf("Payload() = %q", got)
	}
}

func TestHexDump(t *testing.T) {
	got := HexDump([]byte("M,N:0"))
	if got != "4D 2C 4E 3A 30\n" {
		t.Errorf("HexDump = %q", got)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		tag  Tag
		v    int
		want string
	}{
		{TagHygroTemp, 213, "21.3°C"},
		{TagBaroPressure, 10132, "1013.2hPa"},
		{TagGasAltitude, 35, "35m"},
		{TagMotion, 1, "detected"},
		{TagVoltage, 33, "3.3V"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.tag, tt.v); got != tt.want {
			t.Errorf("FormatValue(%s, %d) = %q, want %q", tt.tag, tt.v, got, tt.want)
		}
	}
}
