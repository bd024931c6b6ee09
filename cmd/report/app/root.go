package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "WPT"

// NewRootCommand creates the report command tree
func NewRootCommand(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("log-level", "info")

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Merge scope exports and chart rig logs",
		Long: `Offline tools for the files the bench produces: merge the measurement tables
exported by the scope software into one CSV, and chart the CSV logs written by
the rig.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("log-level", "", "log level: debug, info, warn, error (env WPT_LOG_LEVEL)")
	_ = v.BindPFlag("log-level", flags.Lookup("log-level"))

	cmd.AddCommand(
		newMergeCommand(logger),
		newPlotCommand(logger),
	)

	return cmd
}

// createDir makes sure the parent directory of path exists
func createDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory '%s': %w", dir, err)
	}
	return nil
}
