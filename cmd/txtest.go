// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/sensornode/pkg/wire"
	"github.com/spf13/cobra"
)

var (
	txTestTimeout  int
	txTestCount    int
	txTestInterval int
)

var txTestCmd = &cobra.Command{
	Use:   "tx_test",
	Short: "Send test frames through the configured radio",
	Long: `Bring up the configured radio and send a series of test frames.

Each frame carries the node identifier, the message counter and a fixed supply
voltage, so a receiver can spot gaps in the sequence.

This is useful for verifying:
  - The modem accepts the transceiver settings
  - Frames fit the transceiver payload limit
  - The WebSocket or MQTT bridge accepts frames

Exit codes:
  0 - All frames sent
  1 - One or more frames failed
  2 - Connection or radio setup error`,
	RunE: runTxTest,
}

func init() {
	rootCmd.AddCommand(txTestCmd)
	txTestCmd.Flags().IntVar(&txTestTimeout, "timeout", 5, "Timeout in seconds for each frame")
	txTestCmd.Flags().IntVar(&txTestCount, "count", 3, "Number of frames to send")
	txTestCmd.Flags().IntVar(&txTestInterval, "interval", 1000, "Delay between frames in milliseconds")
}

func runTxTest(cmd *cobra.Command, args []string) error {
	if txTestCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	if err := validateProfile(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id, _ := resolveID()
	r, connInfo, err := OpenRadio(ctx, profile.Radio, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer r.Close()

	fmt.Printf("Sensornode - Transmit Test\n")
	fmt.Printf("Node: %s\n", id)
	fmt.Printf("Radio: %s\n", connInfo)
	fmt.Printf("Frequency: %.2f MHz, %d dBm\n", profile.Radio.Transceiver.FrequencyMHz, profile.Radio.Transceiver.PowerDBm)
	fmt.Printf("Count: %d frames\n\n", txTestCount)

	beginCtx, cancel := context.WithTimeout(ctx, time.Duration(txTestTimeout)*time.Second)
	err = r.Begin(beginCtx, profile.Radio.Transceiver)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Radio setup failed: %v\n", err)
		os.Exit(2)
	}

	successCount := 0
	failCount := 0

	for i := 1; i <= txTestCount; i++ {
		fmt.Printf("Frame %d/%d: ", i, txTestCount)

		counter := uint16(i)
		frame, err := wire.EncodeFromValues(int32(id), &counter, &wire.Readings{}, 33)
		if err != nil {
			fmt.Printf("ENCODE FAILED: %v\n", err)
			failCount++
			continue
		}

		startTime := time.Now()
		txCtx, cancel := context.WithTimeout(ctx, time.Duration(txTestTimeout)*time.Second)
		err = r.Transmit(txCtx, frame.Bytes())
		cancel()
		if err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
		} else {
			fmt.Printf("%s sent in %v\n", frame.Payload(), time.Since(startTime).Round(time.Millisecond))
			successCount++
		}

		// Delay between frames
		if i < txTestCount {
			time.Sleep(time.Duration(txTestInterval) * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Transmit statistics ---\n")
	fmt.Printf("%d frames, %d sent, %.0f%% failed\n",
		txTestCount, successCount, float64(failCount)/float64(txTestCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
