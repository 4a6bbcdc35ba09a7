package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/logsniff/pkg/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a logsniff configuration file without parsing any source.

Checks:
  - YAML syntax
  - Pipeline bounds and the skip threshold
  - Declarative format patterns (named groups, block entry starts)
  - Webhook URLs and triggers
  - Source file existence (warning only)`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Validating %s...\n", configPath)

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration valid!\n")
	fmt.Fprintf(out, "  Sources:  %d pattern(s)\n", len(cfg.Sources))
	fmt.Fprintf(out, "  Formats:  %d\n", len(cfg.Formats))
	fmt.Fprintf(out, "  Webhooks: %d\n", len(cfg.Webhooks))
	fmt.Fprintf(out, "  Workers:  %d, skip threshold: %g\n", cfg.Pipeline.Workers, cfg.Pipeline.SkipThreshold)

	if len(cfg.Formats) > 0 {
		fmt.Fprintf(out, "\nFormats:\n")
		for i, f := range cfg.Formats {
			fmt.Fprintf(out, "  %d. [%s/%s] %s\n", i+1, f.Family, f.Stage, f.ID)
			if f.Description != "" {
				fmt.Fprintf(out, "     %s\n", f.Description)
			}
		}
	}

	// Check if sources exist (warnings only)
	files, err := config.ExpandGlobs(cfg.Sources)
	switch {
	case err != nil:
		fmt.Fprintf(out, "\nWarning: Error expanding source patterns: %v\n", err)
	case len(cfg.Sources) == 0:
		fmt.Fprintf(out, "\nWarning: No sources configured\n")
	default:
		fmt.Fprintf(out, "\nSource files: %d\n", len(files))
		for _, f := range files {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}

	return nil
}
