package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"dwiqc/internal/logging"
	"dwiqc/pkg/config"
	"dwiqc/pkg/overlay"
)

const appName = "atlasoverlay"

func main() {
	if err := newCommand(os.Stdout).Execute(); err != nil {
		logger := logging.New(appName, "error")
		logger.Error().Err(err).Msg("overlay failed")
		os.Exit(1)
	}
}

// newCommand builds the CLI; the result line is written to out
func newCommand(out io.Writer) *cobra.Command {
	var (
		subjectID  string
		atlasLabel string
		atlasImage string
		nodifImage string
		outputDir  string
		configPath string
	)

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Create an overlay of an atlas on top of a nodif image.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			logger := logging.New(appName, cfg.Logging.Level)

			renderer, err := overlay.NewRenderer(cfg, logger)
			if err != nil {
				return err
			}

			overlayFile, err := renderer.Render(subjectID, atlasLabel, atlasImage, nodifImage, outputDir)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Overlay file saved: %s\n", overlayFile)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&subjectID, "subjid", "", "subject ID")
	flags.StringVar(&atlasLabel, "atlas", "", "atlas name")
	flags.StringVar(&atlasImage, "atlas_image", "", "Path to the atlas image file")
	flags.StringVar(&nodifImage, "nodif", "", "Path to the nodif image file")
	flags.StringVar(&outputDir, "output", "", "Output directory where the overlay PNG file will be saved")
	flags.StringVar(&configPath, "config", "", "Optional YAML configuration file")

	for _, name := range []string{"subjid", "atlas", "atlas_image", "nodif", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}
