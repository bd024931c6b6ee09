package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roman-kulish/wpt-rig/internal/instrument/sim"
)

const envPrefix = "WPT"

// session is the state shared by the subcommands of one invocation
type session struct {
	viper  *viper.Viper
	logger *slog.Logger
	level  *slog.LevelVar
	config *Config
}

// NewRootCommand creates the rig command tree. The level is set from the
// configuration once the flags are parsed.
func NewRootCommand(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	s := session{viper: v, logger: logger, level: level}

	cmd := &cobra.Command{
		Use:   "rig",
		Short: "Wireless power transfer bench rig",
		Long: `Drives the bench instrument: scope channels for the supply, TX current,
TX voltage and RX voltage, a logic line carrying the load cell force and the
pattern generator clocking the inverter. Measurements are appended to CSV logs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.init()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to the configuration file (env WPT_CONFIG)")
	flags.String("log-level", "", "log level: debug, info, warn, error (env WPT_LOG_LEVEL)")
	flags.String("data-dir", "", "directory relative output paths are written to (env WPT_DATA_DIR)")
	flags.Bool("dry-run", false, "use the simulated rig instead of the configured instrument")

	for _, name := range []string{"config", "log-level", "data-dir", "dry-run"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(
		newCaptureCommand(&s),
		newMonitorCommand(&s),
		newEquilibriumCommand(&s),
		newCoordSweepCommand(&s),
		newFreqSweepCommand(&s),
	)

	return cmd
}

// init loads the configuration and layers the persistent flags over it
func (s *session) init() error {
	config := DefaultConfig()
	if path := s.viper.GetString("config"); path != "" {
		c, err := LoadConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration file '%s': %w", path, err)
		}
		config = c
	}

	if level := s.viper.GetString("log-level"); level != "" {
		config.Settings.LogLevel = level
	}
	if dir := s.viper.GetString("data-dir"); dir != "" {
		config.Settings.DataDirectory = dir
	}
	if s.viper.GetBool("dry-run") && config.Instrument.Type != InstrumentSimulated {
		config.Instrument.Type = InstrumentSimulated
		config.Instrument.Config = &sim.Config{}
	}

	if err := config.Validate(); err != nil {
		return err
	}
	if err := s.level.UnmarshalText([]byte(config.Settings.LogLevel)); err != nil {
		return fmt.Errorf("settings.logLevel: %w", err)
	}

	s.config = config
	return nil
}

// orchestrator creates the instrument and an orchestrator bound to the
// console of cmd.
func (s *session) orchestrator(cmd *cobra.Command) (*Orchestrator, error) {
	acquirer, err := CreateAcquirer(&s.config.Instrument, s.logger)
	if err != nil {
		return nil, err
	}

	o, err := NewOrchestrator(acquirer, &s.config.Rig,
		WithLogger(s.logger),
		WithConsole(cmd.InOrStdin(), cmd.OutOrStdout()),
		WithDataDirectory(s.config.Settings.DataDirectory))
	if err != nil {
		_ = acquirer.Close()
		return nil, err
	}

	s.logger.Debug("instrument ready",
		slog.String("instrument", string(s.config.Instrument.Type)),
		slog.String("instrumentID", s.config.Instrument.Name))

	return o, nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// interrupted reports whether err only says the run was stopped by the operator
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
