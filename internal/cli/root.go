// Package cli provides the command-line interface for logsniff.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ccollicutt/logsniff/internal/cli/commands"
	"github.com/ccollicutt/logsniff/internal/cli/plugins"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	commands.ExitCode = commands.ExitOK
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		// Print error to stderr (SilenceErrors prevents Cobra from doing this)
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return commands.ExitError
	}
	return commands.ExitCode
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	g := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "logsniff",
		Short: "Detect and parse log formats into normalized records",
		Long: `logsniff detects the format of log files and parses them into
normalized records with canonical timestamps and an inferred schema.

It recognizes:
  - Syslog, Common/Combined Log Format, Apache error, CEF and W3C extended logs
  - JSON lines, JSON arrays, logfmt, CSV, TSV, XML and MessagePack frames
  - Multi-line application logs (stack traces stay with their entry)
  - Domain logs by keyword: browsing, virus, mail, firewall, auth, system,
    application, ids and vpn
  - gzip, bzip2, zstd and zip compressed files

PLUGINS:
  Formats can be declared without code in YAML files holding a formats list,
  the same shape as the formats section of the config file.

  Plugin locations (searched in order):
    1. formats/ next to the logsniff binary
    2. ~/.logsniff/formats/
    3. Directories listed in $` + plugins.EnvFormatPath,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.NoColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.ConfigPath, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&g.LogLevel, "log-level", "", "Log level (debug|info|warn|error), overrides the config")
	rootCmd.PersistentFlags().BoolVar(&g.NoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&g.NoPlugins, "no-plugins", false, "Do not load format plugins")

	rootCmd.AddCommand(commands.NewParseCommand(g))
	rootCmd.AddCommand(commands.NewDetectCommand(g))
	rootCmd.AddCommand(commands.NewFormatsCommand(g))
	rootCmd.AddCommand(commands.NewDiagnoseCommand(g))
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
