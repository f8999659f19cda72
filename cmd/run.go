// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/sensornode/pkg/config"
	"github.com/Thermoquad/sensornode/pkg/journal"
	"github.com/Thermoquad/sensornode/pkg/logging"
	"github.com/Thermoquad/sensornode/pkg/node"
	"github.com/Thermoquad/sensornode/pkg/platform"
	"github.com/Thermoquad/sensornode/pkg/sensors"
	"github.com/Thermoquad/sensornode/pkg/wire"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	useTUI        bool
	journalPath   string
	maxCycles     int
	dryRun        bool
	timeScale     float64
	statsInterval int
	debugCounter  bool
	sensorList    []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor node duty cycle",
	Long: `Run the node: resolve the identifier, initialize the radio and sensors, then
sample, encode, transmit and sleep until interrupted.

Timer-driven nodes sleep for the profile's long sleep (4 minutes by default)
between cycles. A node with a motion detector sleeps until the detector wakes
it. A failed sensor read or an oversized frame skips the transmission and
retries after one sleep quantum.

--dry-run replaces the radio with an in-memory recorder. --time-scale speeds up
sleeps for bench runs (--time-scale 60 turns a 4 minute sleep into 4 seconds).

Every controller event can be journalled to a CBOR file with --journal and
replayed later with the journal command.`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "Use terminal UI dashboard")
	runCmd.Flags().StringVar(&journalPath, "journal", "", "Append events to a CBOR journal file")
	runCmd.Flags().IntVar(&maxCycles, "cycles", 0, "Stop after N cycles (0 runs until interrupted)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Record frames in memory instead of transmitting")
	runCmd.Flags().Float64Var(&timeScale, "time-scale", 0, "Speed up sleeps by this factor")
	runCmd.Flags().IntVar(&statsInterval, "stats-interval", 60, "Statistics interval in seconds (text mode)")
	runCmd.Flags().BoolVar(&debugCounter, "debug", false, "Include the message counter in every frame")
	runCmd.Flags().StringSliceVar(&sensorList, "sensors", nil, "Sensors to sample, in order (overrides profile)")
}

// nodeSetup holds everything a run needs, so it can be closed in one place
type nodeSetup struct {
	id         node.DeviceID
	controller *node.Controller
	radio      Radio
	buses      *sensors.Buses
	connInfo   string
	stats      *node.Statistics
	sleeper    *platform.TimerSleeper
	journal    *journal.Writer
}

func (s *nodeSetup) Close() error {
	var errs []error
	if s.radio != nil {
		errs = append(errs, s.radio.Close())
	}
	if s.buses != nil {
		errs = append(errs, s.buses.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	return errors.Join(errs...)
}

// shutdown stops the controller and waits for it to return before closing
// the radio, buses and journal. A cancelled run is not an error.
func (s *nodeSetup) shutdown(cancel context.CancelFunc, done <-chan error) error {
	cancel()
	err := <-done
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, s.Close())
}

// resolveID reads the identifier from the profile's storage. A read failure
// is logged and the node runs as 0.
func resolveID() (node.DeviceID, string) {
	mem, info, err := OpenStorage(profile.Storage)
	if err != nil {
		logger.Warn("identifier storage unavailable", "error", err)
		return 0, "unavailable"
	}
	defer mem.Close()

	id, err := node.NewIdentity(mem).ID()
	if err != nil {
		logger.Warn("identifier read failed", "error", err)
	}
	return id, info
}

func setupNode(ctx context.Context, observer node.Observer) (*nodeSetup, error) {
	s := &nodeSetup{stats: node.NewStatistics()}

	var storeInfo string
	s.id, storeInfo = resolveID()
	logger.Info("identifier resolved", "node", s.id.String(), "storage", storeInfo)

	var err error
	s.radio, s.connInfo, err = OpenRadio(ctx, profile.Radio, s.id)
	if err != nil {
		return nil, err
	}

	kinds, err := profile.SensorKinds()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.buses = &sensors.Buses{}
	list, err := sensors.Open(kinds, profile.HostOptions(), s.buses, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.sleeper = platform.NewTimerSleeper(time.Duration(profile.Power.Quantum), sensors.WakeSource(list), logger)
	s.sleeper.Scale = profile.Power.TimeScale
	pm := node.NewPowerManager(s.sleeper, logger)
	pm.SettleDelay = time.Duration(profile.Power.SettleDelay)

	observers := []node.Observer{s.stats.Observe, observer}
	if journalPath != "" {
		f, err := os.OpenFile(journalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.journal = journal.NewWriter(f)
		observers = append(observers, s.journal.Observe)
	}

	s.controller, err = node.NewController(node.Config{
		Node:        s.id,
		Radio:       s.radio,
		RadioConfig: profile.Radio.Transceiver,
		Sensors:     list,
		Voltage:     OpenSupply(profile.Supply),
		Power:       pm,
		Encoder:     wire.NewEncoder(),
		Debug:       profile.Debug,
		LongSleep:   profile.Power.LongSleepMinutes,
		MaxCycles:   maxCycles,
		Logger:      logger,
		Observer:    node.Observers(observers...),
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func runNode(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if dryRun {
		profile.Radio.Kind = config.RadioRecorder
	}
	if flags.Changed("time-scale") {
		profile.Power.TimeScale = timeScale
	}
	if flags.Changed("debug") {
		profile.Debug = debugCounter
	}
	if flags.Changed("sensors") {
		profile.Sensors = sensorList
	}
	if err := validateProfile(); err != nil {
		return err
	}
	if !useTUI && statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive, got %d", statsInterval)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI {
		return runTUIMode(ctx)
	}
	return runTextMode(ctx)
}

// runTUIMode runs the node with the dashboard
func runTUIMode(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Log output would tear the alternate screen; the dashboard shows events
	logger = logging.Discard()

	// Events are dropped rather than stall the duty cycle
	events := make(chan node.Event, 64)
	observer := func(e node.Event) {
		select {
		case events <- e:
		default:
		}
	}

	setup, err := setupNode(ctx, observer)
	if err != nil {
		return err
	}

	m := initialModel(profile.Name, setup.id, setup.connInfo, setup.stats, setup.controller.Motion())
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-events:
				p.Send(nodeEventMsg(e))
			}
		}
	}()

	done := make(chan error, 1)
	go func() {
		err := setup.controller.Run(ctx)
		p.Send(nodeDoneMsg{err: err})
		done <- err
	}()

	_, tuiErr := p.Run()
	err = setup.shutdown(cancel, done)
	if tuiErr != nil {
		return fmt.Errorf("TUI error: %w", tuiErr)
	}
	return err
}

// runTextMode runs the node with log output and periodic statistics
func runTextMode(ctx context.Context) error {
	setup, err := setupNode(ctx, nil)
	if err != nil {
		return err
	}
	defer setup.Close()

	fmt.Printf("Sensornode - %s\n", profile.Name)
	fmt.Printf("Node: %s\n", setup.id)
	fmt.Printf("Radio: %s\n", setup.connInfo)
	fmt.Printf("Sensors: %v\n", profile.Sensors)
	if setup.controller.Motion() {
		fmt.Printf("Wake-up: motion\n")
	} else {
		fmt.Printf("Wake-up: every %d min\n", profile.Power.LongSleepMinutes)
	}
	if profile.Power.TimeScale > 1 {
		fmt.Printf("Time scale: x%g (quantum %v)\n", profile.Power.TimeScale, setup.sleeper.Wait())
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	done := make(chan error, 1)
	go func() {
		done <- setup.controller.Run(ctx)
	}()

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case err := <-done:
			fmt.Println()
			fmt.Print(setup.stats.String())
			if setup.journal != nil {
				fmt.Printf("Journal: %d records -> %s\n", setup.journal.Count(), journalPath)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(setup.stats.String())
			fmt.Println()
		}
	}
}
