package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/logsniff/pkg/registry"
)

// FormatsOptions holds command-line options for the formats command.
type FormatsOptions struct {
	Output string
	Stage  string
}

// FormatInfo describes one registered format.
type FormatInfo struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Family      string   `json:"family"`
	Stage       string   `json:"stage"`
	Priority    int      `json:"priority,omitempty"`
	Sequential  bool     `json:"sequential,omitempty"`
	Extensions  []string `json:"extensions,omitempty"`
	Origin      string   `json:"origin"`
}

// NewFormatsCommand creates the formats command.
func NewFormatsCommand(g *GlobalOptions) *cobra.Command {
	opts := &FormatsOptions{}

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List the registered formats in detection order",
		Long: `List every format the detector can choose, in detection order.

Built-in formats come first within their stage priority; formats declared in
the config file and format plugins are listed with their origin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormats(cmd, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().StringVar(&opts.Stage, "stage", "", "Only list formats of this detection stage")

	return cmd
}

func runFormats(cmd *cobra.Command, g *GlobalOptions, opts *FormatsOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var stage registry.Stage
	if opts.Stage != "" {
		var err error
		if stage, err = registry.ParseStage(opts.Stage); err != nil {
			return err
		}
	}

	s, err := openSession(ctx, g, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	infos := listFormats(s, stage)

	switch opts.Output {
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	case "text":
		return outputFormatsText(infos, cmd.OutOrStdout())
	default:
		return fmt.Errorf("unknown output format %q (use text or json)", opts.Output)
	}
}

// listFormats returns the session formats in detection order. A zero stage
// lists every stage.
func listFormats(s *session, stage registry.Stage) []FormatInfo {
	origins := make(map[string]string)
	for _, f := range s.cfg.Formats {
		origins[f.ID] = "config"
	}
	for _, p := range s.plugins {
		origins[p.ID] = p.File
	}

	var descs []registry.Descriptor
	if stage != 0 {
		descs = s.registry.Stage(stage)
	} else {
		descs = s.registry.Descriptors()
	}

	infos := make([]FormatInfo, 0, len(descs))
	for _, d := range descs {
		origin, ok := origins[d.ID]
		if !ok {
			origin = "builtin"
		}
		infos = append(infos, FormatInfo{
			ID:          d.ID,
			Description: d.Description,
			Family:      d.Family.String(),
			Stage:       d.Rule.Stage.String(),
			Priority:    d.Priority,
			Sequential:  d.Sequential,
			Extensions:  d.Rule.Extensions,
			Origin:      origin,
		})
	}
	return infos
}

func outputFormatsText(infos []FormatInfo, w io.Writer) error {
	headerColor.Fprintln(w, "=== Registered Formats ===")
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tID\tFAMILY\tEXTENSIONS\tORIGIN\tDESCRIPTION")
	for _, f := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.Stage, f.ID, f.Family, strings.Join(f.Extensions, ","), f.Origin, f.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d formats\n", len(infos))
	return nil
}
