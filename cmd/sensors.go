// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/radio"
	"github.com/Thermoquad/sensornode/pkg/sensors"
	"github.com/Thermoquad/sensornode/pkg/wire"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/host/v3"
)

var (
	discoveryTimeout int
	discoveryList    bool
)

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "Discover buses and read every configured sensor once",
	Long: `List the buses and serial ports present on the host, then initialize each
sensor in the profile and read it once.

Sensors are read in profile order, the same order the node samples them in.
Readings a sensor could not take are reported as absent, exactly as they would
be left out of the frame.

Examples:
  sensornode sensors --list
  sensornode sensors --sensors si7021,bmp280

Exit codes:
  0 - Every sensor initialized and read
  1 - One or more sensors failed
  2 - Host or bus error`,
	RunE: runSensors,
}

func init() {
	rootCmd.AddCommand(sensorsCmd)
	sensorsCmd.Flags().IntVar(&discoveryTimeout, "timeout", 5, "Timeout in seconds for each sensor")
	sensorsCmd.Flags().BoolVar(&discoveryList, "list", false, "Only list buses and ports")
	sensorsCmd.Flags().StringSliceVar(&sensorList, "sensors", nil, "Sensors to read, in order (overrides profile)")
}

// printHostInventory lists the buses and ports periph and the serial
// library can see
func printHostInventory() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host.Init: %w", err)
	}

	fmt.Printf("I2C buses:\n")
	buses := i2creg.All()
	if len(buses) == 0 {
		fmt.Printf("  (none)\n")
	}
	for _, ref := range buses {
		fmt.Printf("  %s", ref.Name)
		if ref.Number >= 0 {
			fmt.Printf(" (#%d)", ref.Number)
		}
		fmt.Println()
	}

	fmt.Printf("1-Wire buses:\n")
	ow := onewirereg.All()
	if len(ow) == 0 {
		fmt.Printf("  (none)\n")
	}
	for _, ref := range ow {
		fmt.Printf("  %s\n", ref.Name)
	}

	fmt.Printf("Serial ports:\n")
	ports, err := radio.SerialPorts()
	if err != nil {
		fmt.Printf("  (error: %v)\n", err)
	} else if len(ports) == 0 {
		fmt.Printf("  (none)\n")
	}
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

func runSensors(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("sensors") {
		profile.Sensors = sensorList
	}

	fmt.Printf("Sensornode - Sensor Discovery\n\n")
	if err := printHostInventory(); err != nil {
		fmt.Fprintf(os.Stderr, "Host error: %v\n", err)
		os.Exit(2)
	}
	if discoveryList {
		return nil
	}

	kinds, err := profile.SensorKinds()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if len(kinds) == 0 {
		fmt.Printf("\nNo sensors configured.\n")
		return nil
	}

	buses := &sensors.Buses{}
	defer buses.Close()
	list, err := sensors.Open(kinds, profile.HostOptions(), buses, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bus error: %v\n", err)
		os.Exit(2)
	}

	failed := 0
	for _, s := range list {
		fmt.Printf("\n%s:\n", s.Name())

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(discoveryTimeout)*time.Second)
		err := s.Init(ctx)
		if err != nil {
			cancel()
			fmt.Printf("  INIT FAILED: %v\n", err)
			failed++
			continue
		}

		var r wire.Readings
		err = s.Read(ctx, &r)
		cancel()
		switch {
		case errors.Is(err, node.ErrReadFailed):
			fmt.Printf("  READ FAILED (cycle would be skipped): %v\n", err)
			failed++
		case err != nil:
			fmt.Printf("  READ FAILED: %v\n", err)
			failed++
		default:
			fmt.Print(wire.FormatReadings(&r))
		}
	}

	if supply := OpenSupply(profile.Supply); supply != nil {
		mv, err := supply.Millivolts(context.Background())
		if err != nil {
			fmt.Printf("\nSupply: unavailable (%v), V1 would be 0\n", err)
		} else {
			fmt.Printf("\nSupply: %d mV (V1:%d)\n", mv, mv/100)
		}
	}

	// Summary
	fmt.Printf("\n--- Sensor summary ---\n")
	fmt.Printf("Sensors read: %d/%d\n", len(list)-failed, len(list))
	if sensors.WakeSource(list) != nil {
		fmt.Printf("Wake-up: motion detector present, node sleeps until woken\n")
	}

	if failed > 0 {
		os.Exit(1)
	}
	return nil
}
