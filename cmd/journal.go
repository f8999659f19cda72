// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/sensornode/pkg/journal"
	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/wire"
	"github.com/spf13/cobra"
)

var (
	journalSummary bool
	journalKind    string
)

var journalCmd = &cobra.Command{
	Use:   "journal <file>",
	Short: "Display a CBOR event journal in human-readable format",
	Long: `Decode and display the events a node run recorded with --journal.

Each line shows the timestamp, event, node identifier and, for transmissions,
the frame payload. --summary replays the journal into the same statistics the
run command prints.`,
	Args: cobra.ExactArgs(1),
	RunE: runJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().BoolVar(&journalSummary, "summary", false, "Print statistics after the events")
	journalCmd.Flags().StringVar(&journalKind, "kind", "", "Only show events of this kind (e.g. transmit, read_failed)")
}

// recordEvent rebuilds the parts of a controller event the statistics use
func recordEvent(rec journal.Record) node.Event {
	e := node.Event{
		Kind:    rec.EventKind(),
		Time:    rec.Timestamp(),
		Node:    node.DeviceID(rec.Node),
		Counter: rec.Counter,
		Quanta:  rec.Quanta,
	}
	if rec.Sleep == node.Forever().String() {
		e.Sleep = node.Forever()
	}
	if len(rec.Frame) == wire.FrameSize {
		var f wire.Frame
		copy(f[:], rec.Frame)
		e.Frame = &f
	}
	if rec.Error != "" {
		e.Err = errors.New(rec.Error)
	}
	return e
}

func runJournal(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("Sensornode - Journal\n")
	fmt.Printf("File: %s\n\n", args[0])

	stats := node.NewStatistics()
	r := journal.NewReader(f)
	count := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A run killed mid-write leaves a truncated last record
			fmt.Printf("[ERROR] %v\n", err)
			break
		}
		count++
		stats.Observe(recordEvent(rec))

		if journalKind != "" && rec.EventKind().String() != journalKind {
			continue
		}
		fmt.Println(journal.FormatRecord(rec))
	}

	fmt.Printf("\n%d records\n", count)
	if journalSummary {
		fmt.Println()
		fmt.Print(stats.String())
	}
	return nil
}
