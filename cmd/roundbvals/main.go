package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"dwiqc/internal/logging"
	"dwiqc/pkg/bvals"
	"dwiqc/pkg/config"
)

const appName = "roundbvals"

func main() {
	if err := newCommand(os.Stderr).Execute(); err != nil {
		logger := logging.New(appName, "error")
		logger.Error().Err(err).Msg("rounding failed")
		os.Exit(1)
	}
}

// newCommand builds the CLI; logs go to logOut
func newCommand(logOut io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           appName + " BVALS_FILE",
		Short:         "round bvals file.",
		Long:          "Round every b-value in BVALS_FILE to the nearest multiple of 1000 and rewrite the file in place.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			logger := logging.NewWithWriter(logOut, appName, cfg.Logging.Level)

			table, err := bvals.RoundFile(args[0], cfg.Bvals.Base)
			if err != nil {
				return err
			}

			rows, cols := table.Dims()
			logger.Info().
				Str("file", args[0]).
				Int("rows", rows).
				Int("cols", cols).
				Float64("base", cfg.Bvals.Base).
				Msg("b-values rounded")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Optional YAML configuration file")

	return cmd
}
