package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/wpt-rig/internal/export"
	"github.com/roman-kulish/wpt-rig/internal/record"
)

type mergeOptions struct {
	inputs  []string
	output  string
	profile string
	append  bool
}

func newMergeCommand(logger *slog.Logger) *cobra.Command {
	var opts mergeOptions

	cmd := &cobra.Command{
		Use:   "merge -i <file or glob>... -o <output.csv>",
		Short: "Merge scope measurement exports into one CSV",
		Long: `Reads every measurement table exported by the scope software and writes one
row per file, keyed by the file name without its extension. The profile selects
which rows of the export become which columns:

  rx  supply, TX current and voltage, RX voltage statistics (last column)
  dc  supply and the current probe calibration ("Value" column)`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.inputs = append(opts.inputs, args...)
			return runMerge(cmd, logger, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.inputs, "input", "i", nil, "input files or glob patterns, more may follow as arguments")
	flags.StringVarP(&opts.output, "output", "o", "", "merged CSV file")
	flags.StringVarP(&opts.profile, "profile", "p", export.ProfileRX,
		fmt.Sprintf("merge profile: %s", strings.Join(export.Names(), ", ")))
	flags.BoolVar(&opts.append, "append", false, "append to the output instead of replacing it")

	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runMerge(cmd *cobra.Command, logger *slog.Logger, opts *mergeOptions) error {
	profile, err := export.Lookup(opts.profile)
	if err != nil {
		return err
	}

	paths, err := export.Expand(opts.inputs)
	if err != nil {
		return err
	}

	rows, err := profile.Merge(paths, logger)
	if err != nil {
		return err
	}

	if !opts.append {
		if err := os.Remove(opts.output); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error replacing output: %w", err)
		}
	}

	sink := record.NewCSVSink(opts.output, record.WithLogger(logger))
	if err := sink.Append(rows...); err != nil {
		return err
	}

	logger.Info("exports merged", slog.String("profile", profile.Name), slog.Int("files", len(rows)))
	fmt.Fprintf(cmd.OutOrStdout(), "Merged CSV saved to %s\n", sink.Path())
	return nil
}
