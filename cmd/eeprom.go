// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/storage"
	"github.com/Thermoquad/sensornode/pkg/wire"
	"github.com/spf13/cobra"
)

var eepromDump bool

var eepromCmd = &cobra.Command{
	Use:   "eeprom",
	Short: "Show or provision the stored node identifier",
	Long: `Read or write the node identifier in persistent storage.

The identifier is a little-endian 32-bit integer at offset 13. A first byte of
0xFF means the cell was never written and the node reports itself as 0.

The storage is selected by the profile: an EEPROM image file, a bbolt database
holding one image per profile, an AT24 I2C EEPROM, or memory.`,
}

var eepromReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Print the stored identifier",
	Args:  cobra.NoArgs,
	RunE:  runEEPROMRead,
}

var eepromWriteCmd = &cobra.Command{
	Use:   "write <id>",
	Short: "Provision the identifier (hex, as in the N field)",
	Args:  cobra.ExactArgs(1),
	RunE:  runEEPROMWrite,
}

var eepromEraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase the identifier so the node reports 0",
	Args:  cobra.NoArgs,
	RunE:  runEEPROMErase,
}

func init() {
	rootCmd.AddCommand(eepromCmd)
	eepromCmd.AddCommand(eepromReadCmd, eepromWriteCmd, eepromEraseCmd)
	eepromReadCmd.Flags().BoolVar(&eepromDump, "dump", false, "Hex dump the whole memory")
}

func runEEPROMRead(cmd *cobra.Command, args []string) error {
	mem, info, err := OpenStorage(profile.Storage)
	if err != nil {
		return err
	}
	defer mem.Close()

	fmt.Printf("Storage: %s\n", info)

	raw := make([]byte, node.IDSize)
	if _, err := mem.ReadAt(raw, node.IDAddress); err != nil {
		return err
	}
	id, err := node.ResolveID(mem)
	if err != nil {
		return err
	}

	fmt.Printf("Raw:     % X\n", raw)
	if raw[0] == node.ErasedByte {
		fmt.Printf("Node:    %s (not provisioned)\n", id)
	} else {
		fmt.Printf("Node:    %s (%d)\n", id, int32(id))
	}

	if eepromDump {
		data := make([]byte, mem.Size())
		if _, err := mem.ReadAt(data, 0); err != nil {
			return err
		}
		fmt.Printf("\n%s", wire.HexDump(data))
	}
	return nil
}

func runEEPROMWrite(cmd *cobra.Command, args []string) error {
	id, err := parseNodeID(args[0])
	if err != nil {
		return err
	}
	if byte(uint32(id)) == node.ErasedByte {
		return fmt.Errorf("identifier %s has a low byte of 0x%02X and would read back as unprovisioned", id, node.ErasedByte)
	}

	mem, info, err := OpenStorage(profile.Storage)
	if err != nil {
		return err
	}
	defer mem.Close()

	if err := storage.WriteID(mem, id); err != nil {
		return err
	}
	got, err := node.ResolveID(mem)
	if err != nil {
		return err
	}
	if got != id {
		return fmt.Errorf("verify failed: wrote %s, read back %s", id, got)
	}

	fmt.Printf("Storage: %s\n", info)
	fmt.Printf("Node:    %s written\n", got)
	return nil
}

func runEEPROMErase(cmd *cobra.Command, args []string) error {
	mem, info, err := OpenStorage(profile.Storage)
	if err != nil {
		return err
	}
	defer mem.Close()

	if err := storage.EraseID(mem); err != nil {
		return err
	}
	fmt.Printf("Storage: %s\n", info)
	fmt.Printf("Identifier erased\n")
	return nil
}
