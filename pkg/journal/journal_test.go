package journal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/wire"
)

func TestWriterReader(t *testing.T) {
	var r wire.Readings
	r.MustSet(wire.TagHygroTemp, 215)
	r.MustSet(wire.TagHygroHumidity, 451)

	counter := uint16(3)
	frame, err := wire.EncodeFromValues(0x3D, &counter, &r, 33)
	if err != nil {
		t.Fatal(err)
	}
	now := time.UnixMilli(1700000000123)

	events := []node.Event{
		{Kind: node.EventInit, Time: now, Node: 0x3D},
		{Kind: node.EventTransmit, Time: now, Node: 0x3D, Counter: 3, Readings: r, Frame: &frame},
		{Kind: node.EventSleep, Time: now, Node: 0x3D, Sleep: node.SleepRequest{Kind: node.SleepMinutes, Minutes: 4}},
		{Kind: node.EventWake, Time: now, Node: 0x3D, Sleep: node.SleepRequest{Kind: node.SleepMinutes, Minutes: 4}, Quanta: 30},
		{Kind: node.EventReadFailed, Time: now, Node: 0x3D, Err: errors.New("bme680: no data")},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	obs := node.Observers(w.Observe)
	for _, e := range events {
		obs(e)
	}
	if w.Count() != len(events) {
		t.Errorf("Count = %d, want %d", w.Count(), len(events))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != len(events) {
		t.Fatalf("got %d records, want %d", len(recs), len(events))
	}

	tx := recs[1]
	if tx.EventKind() != node.EventTransmit {
		t.Errorf("kind = %v, want transmit", tx.EventKind())
	}
	if !tx.Timestamp().Equal(now) {
		t.Errorf("time = %v, want %v", tx.Timestamp(), now)
	}
	if tx.Counter != 3 || tx.Node != 0x3D {
		t.Errorf("counter/node = %d/%d", tx.Counter, tx.Node)
	}
	if tx.Readings["T1"] != 215 || tx.Readings["H1"] != 451 {
		t.Errorf("readings = %v", tx.Readings)
	}
	if !bytes.Equal(tx.Frame, frame.Bytes()) {
		t.Errorf("frame mismatch")
	}

	if recs[3].Quanta != 30 || recs[3].Sleep != "4 min" {
		t.Errorf("wake record = %+v", recs[3])
	}
	if recs[4].Error != "bme680: no data" {
		t.Errorf("error = %q", recs[4].Error)
	}
}

func TestFormatRecord(t *testing.T) {
	var r wire.Readings
	r.MustSet(wire.TagProbeTemp, -55)
	frame, err := wire.EncodeFromValues(0x1F4, nil, &r, 30)
	if err != nil {
		t.Fatal(err)
	}

	rec := NewRecord(node.Event{Kind: node.EventTransmit, Time: time.Now(), Node: 0x1F4, Readings: r, Frame: &frame})
	line := FormatRecord(rec)
	if !strings.Contains(line, "transmit") || !strings.Contains(line, "N=1F4") {
		t.Errorf("line = %q", line)
	}
	if !strings.Contains(line, frame.Payload()) {
		t.Errorf("line %q does not contain payload %q", line, frame.Payload())
	}
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Write(NewRecord(node.Event{Kind: node.EventInit, Time: time.Now()})); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	recs, err := ReadAll(bytes.NewReader(data[:len(data)-1]))
	if err == nil {
		t.Error("expected error for truncated record")
	}
	if len(recs) != 0 {
		t.Errorf("got %d records", len(recs))
	}
}
