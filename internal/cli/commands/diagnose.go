package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ccollicutt/logsniff/internal/cli/plugins"
	"github.com/ccollicutt/logsniff/pkg/config"
	"github.com/ccollicutt/logsniff/pkg/pipeline"
)

var (
	passColor   = color.New(color.FgGreen, color.Bold)
	warnColor   = color.New(color.FgYellow, color.Bold)
	failColor   = color.New(color.FgRed, color.Bold)
	headerColor = color.New(color.FgBlue, color.Bold)
)

// Diagnostic statuses.
const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

// DiagnoseOptions holds options for the diagnose command
type DiagnoseOptions struct {
	Verbose bool
}

// DiagnosticResult represents the result of a single diagnostic check
type DiagnosticResult struct {
	Check    string
	Status   string // "ok", "warning", "error"
	Message  string
	Details  []string
	Suggests []string
}

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand(g *GlobalOptions) *cobra.Command {
	opts := &DiagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose <config-file>",
		Short: "Diagnose common configuration issues",
		Long: `Diagnose common configuration issues.

This command checks your configuration file for common problems:
- Config file syntax and structure
- Source file existence and accessibility
- Format plugin files
- Format detection against the actual sources
- Webhook configuration

Example:
  logsniff diagnose logsniff.yaml
  logsniff diagnose -v logsniff.yaml  # verbose output`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			results := runDiagnose(ctx, args[0], g, opts)
			printDiagnostics(cmd.OutOrStdout(), results, opts)
			if countStatus(results, statusError) > 0 {
				ExitCode = ExitFailure
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show detailed diagnostic output")

	return cmd
}

func runDiagnose(ctx context.Context, configPath string, g *GlobalOptions, opts *DiagnoseOptions) []DiagnosticResult {
	results := []DiagnosticResult{}

	// 1. Check config file existence
	result := checkConfigExists(configPath)
	results = append(results, result)
	if result.Status == statusError {
		return results
	}

	// 2. Parse config file
	cfg, result := checkConfigParseable(ctx, configPath)
	results = append(results, result)
	if result.Status == statusError {
		return results
	}

	// 3. Check sources
	results = append(results, checkSources(cfg)...)

	// 4. Check format plugins
	if g == nil || !g.NoPlugins {
		results = append(results, checkPlugins(plugins.Dirs(), opts)...)
	}

	// 5. Detect the format of every source
	local := GlobalOptions{ConfigPath: configPath, LogLevel: "error"}
	if g != nil {
		local.NoPlugins = g.NoPlugins
	}
	results = append(results, checkDetection(ctx, &local, cfg, opts)...)

	// 6. Check webhooks configuration
	results = append(results, checkWebhooks(cfg, opts)...)

	return results
}

func checkConfigExists(path string) DiagnosticResult {
	result := DiagnosticResult{
		Check: "Config File",
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		result.Status = statusError
		result.Message = fmt.Sprintf("Config file not found: %s", path)
		result.Suggests = []string{
			"Check the file path is correct",
			"Use 'logsniff detect <log-file> --write-config logsniff.yaml' to generate a starter config",
		}
		return result
	}
	if err != nil {
		result.Status = statusError
		result.Message = fmt.Sprintf("Cannot access config file: %v", err)
		result.Suggests = []string{"Check file permissions"}
		return result
	}
	if info.IsDir() {
		result.Status = statusError
		result.Message = "Path is a directory, not a file"
		return result
	}
	if info.Size() == 0 {
		result.Status = statusError
		result.Message = "Config file is empty"
		result.Suggests = []string{
			"Use 'logsniff detect <log-file> --write-config logsniff.yaml' to generate a starter config",
		}
		return result
	}

	result.Status = statusOK
	result.Message = fmt.Sprintf("Found: %s (%d bytes)", path, info.Size())
	return result
}

func checkConfigParseable(ctx context.Context, path string) (*config.Config, DiagnosticResult) {
	result := DiagnosticResult{
		Check: "Config Syntax",
	}

	cfg, err := config.Load(ctx, path)
	if err != nil {
		result.Status = statusError
		result.Message = fmt.Sprintf("Failed to parse config: %v", err)
		if strings.Contains(err.Error(), "yaml") {
			result.Suggests = []string{
				"Check YAML syntax - ensure proper indentation (use spaces, not tabs)",
			}
		}
		if strings.Contains(err.Error(), "pattern") {
			result.Suggests = append(result.Suggests,
				"Format patterns use .NET-style regular expressions with named groups, e.g. (?<host>\\S+)")
		}
		return nil, result
	}

	result.Status = statusOK
	result.Message = "Config file parsed successfully"
	result.Details = []string{
		fmt.Sprintf("Sources: %d", len(cfg.Sources)),
		fmt.Sprintf("Formats: %d", len(cfg.Formats)),
		fmt.Sprintf("Webhooks: %d", len(cfg.Webhooks)),
	}
	return cfg, result
}

func checkSources(cfg *config.Config) []DiagnosticResult {
	results := []DiagnosticResult{}

	if len(cfg.Sources) == 0 {
		results = append(results, DiagnosticResult{
			Check:   "Sources",
			Status:  statusWarning,
			Message: "No sources defined",
			Suggests: []string{
				"Add a sources section to your config, or pass files to 'logsniff parse'",
				"Example: sources:\n  - /var/log/app/*.log",
			},
		})
		return results
	}

	totalFiles := 0
	for _, source := range cfg.Sources {
		result := DiagnosticResult{
			Check: fmt.Sprintf("Source: %s", source),
		}

		if strings.ContainsAny(source, "*?[") {
			matches, err := filepath.Glob(source)
			switch {
			case err != nil:
				result.Status = statusError
				result.Message = fmt.Sprintf("Invalid glob pattern: %v", err)
			case len(matches) == 0:
				result.Status = statusWarning
				result.Message = "Glob pattern matches no files"
				result.Suggests = []string{
					"Check if the log files exist at this path",
					"Verify the glob pattern syntax",
				}
			default:
				result.Status = statusOK
				result.Message = fmt.Sprintf("Matches %d file(s)", len(matches))
				result.Details = append(result.Details, matches...)
				totalFiles += len(matches)
			}
		} else {
			info, err := os.Stat(source)
			switch {
			case os.IsNotExist(err):
				result.Status = statusError
				result.Message = "File does not exist"
				result.Suggests = []string{
					"Check if the log file path is correct",
				}
			case err != nil:
				result.Status = statusError
				result.Message = fmt.Sprintf("Cannot access file: %v", err)
				result.Suggests = []string{"Check file permissions"}
			case info.IsDir():
				result.Status = statusError
				result.Message = "Path is a directory, not a file"
				result.Suggests = []string{
					"Use a glob pattern to match files in directory",
					"Example: /var/log/app/*.log",
				}
			case info.Size() == 0:
				result.Status = statusWarning
				result.Message = "File is empty (0 bytes)"
			default:
				result.Status = statusOK
				result.Message = fmt.Sprintf("File exists (%d bytes)", info.Size())
				totalFiles++
			}
		}
		results = append(results, result)
	}

	if totalFiles == 0 {
		results = append(results, DiagnosticResult{
			Check:   "Source Files Summary",
			Status:  statusError,
			Message: "No accessible source files found",
			Suggests: []string{
				"Ensure at least one source file exists and is readable",
			},
		})
	}

	return results
}

func checkPlugins(dirs []string, opts *DiagnoseOptions) []DiagnosticResult {
	result := DiagnosticResult{
		Check: "Format Plugins",
	}

	files, err := plugins.Discover(dirs)
	if err != nil {
		result.Status = statusError
		result.Message = fmt.Sprintf("Cannot read plugin directories: %v", err)
		return []DiagnosticResult{result}
	}
	if len(files) == 0 {
		if !opts.Verbose {
			return nil
		}
		result.Status = statusOK
		result.Message = "No format plugins installed (optional)"
		result.Details = dirs
		return []DiagnosticResult{result}
	}

	var issues []string
	for _, file := range files {
		formats, err := config.LoadFormats(file)
		if err != nil {
			issues = append(issues, err.Error())
			continue
		}
		for _, f := range formats {
			result.Details = append(result.Details, fmt.Sprintf("%s (%s)", f.ID, file))
		}
	}

	if len(issues) > 0 {
		result.Status = statusError
		result.Message = fmt.Sprintf("%d invalid plugin file(s)", len(issues))
		result.Details = issues
		result.Suggests = []string{"Fix or remove the invalid plugin files"}
		return []DiagnosticResult{result}
	}

	result.Status = statusOK
	result.Message = fmt.Sprintf("%d plugin file(s) loaded", len(files))
	return []DiagnosticResult{result}
}

func checkDetection(ctx context.Context, g *GlobalOptions, cfg *config.Config, opts *DiagnoseOptions) []DiagnosticResult {
	files, err := config.ExpandGlobs(cfg.Sources)
	if err != nil || len(files) == 0 {
		return nil
	}

	s, err := openSession(ctx, g, io.Discard)
	if err != nil {
		return []DiagnosticResult{{
			Check:   "Format Registry",
			Status:  statusError,
			Message: fmt.Sprintf("Cannot build the format registry: %v", err),
			Suggests: []string{
				"A configured format or plugin reuses the id of another format",
			},
		}}
	}
	defer s.close()
	p := s.pipeline()

	results := []DiagnosticResult{}
	for _, file := range files {
		if info, err := os.Stat(file); err != nil || info.IsDir() || info.Size() == 0 {
			continue
		}
		results = append(results, detectionResult(p, file, opts))
	}
	return results
}

func detectionResult(p *pipeline.Pipeline, file string, opts *DiagnoseOptions) DiagnosticResult {
	result := DiagnosticResult{
		Check: fmt.Sprintf("Format Detection: %s", filepath.Base(file)),
	}

	res, err := detectFile(p, file)
	if err != nil {
		result.Status = statusError
		result.Message = fmt.Sprintf("No format detected: %v", err)
		result.Suggests = []string{
			"Declare the format under formats: in the config file",
			"Use 'logsniff detect --explain " + file + "' to see what every stage saw",
		}
		if tr, terr := explainFile(p, file); terr == nil && len(tr.Lines) > 0 {
			result.Details = []string{
				"First sampled line:",
				truncate(tr.Lines[0], 80),
			}
		}
		return result
	}

	result.Status = statusOK
	result.Message = fmt.Sprintf("%s (%s)", res.Format, res.Stage)
	if res.Container != "" {
		result.Message += fmt.Sprintf(", %s compressed", res.Container)
	}
	if opts.Verbose && res.Line != "" {
		result.Details = []string{
			"Sample match:",
			truncate(res.Line, 80),
		}
	}
	return result
}

func checkWebhooks(cfg *config.Config, opts *DiagnoseOptions) []DiagnosticResult {
	results := []DiagnosticResult{}

	if len(cfg.Webhooks) == 0 {
		// Webhooks are optional, just note they're not configured
		if opts.Verbose {
			results = append(results, DiagnosticResult{
				Check:   "Webhooks",
				Status:  statusOK,
				Message: "No webhooks configured (optional)",
			})
		}
		return results
	}

	for _, wh := range cfg.Webhooks {
		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		result := DiagnosticResult{
			Check: fmt.Sprintf("Webhook: %s", name),
		}

		warnings := []string{}
		if wh.Trigger == config.WebhookTriggerNever {
			warnings = append(warnings, "Trigger is never: the webhook is disabled")
		}
		if wh.Token == "" {
			warnings = append(warnings, "No token: requests are sent without authentication")
		}

		if len(warnings) > 0 {
			result.Status = statusWarning
			result.Message = fmt.Sprintf("%d warning(s)", len(warnings))
			result.Details = warnings
		} else {
			result.Status = statusOK
			result.Message = fmt.Sprintf("Trigger: %s, timeout: %s", wh.Trigger, wh.Timeout)
		}

		results = append(results, result)
	}

	// Optionally test webhook connectivity
	if opts.Verbose {
		for _, wh := range cfg.Webhooks {
			name := wh.Name
			if name == "" {
				name = wh.URL
			}

			result := checkWebhookConnectivity(wh)
			result.Check = fmt.Sprintf("Webhook Connectivity: %s", name)
			results = append(results, result)
		}
	}

	return results
}

func checkWebhookConnectivity(wh config.WebhookConfig) DiagnosticResult {
	result := DiagnosticResult{}

	// Just do a HEAD request to check if the endpoint is reachable
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(http.MethodHead, wh.URL, nil)
	if err != nil {
		result.Status = statusWarning
		result.Message = fmt.Sprintf("Cannot create request: %v", err)
		return result
	}

	if wh.Token != "" {
		req.Header.Set("Authorization", "Bearer "+wh.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Status = statusWarning
		result.Message = fmt.Sprintf("Cannot connect: %v", err)
		result.Suggests = []string{
			"Check if the webhook URL is correct",
			"Verify network connectivity",
		}
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.Status = statusOK
		result.Message = fmt.Sprintf("Reachable (status %d)", resp.StatusCode)
	} else {
		result.Status = statusWarning
		result.Message = fmt.Sprintf("Reachable but returned status %d", resp.StatusCode)
		result.Suggests = []string{
			"The endpoint may require POST method (will work during actual webhook send)",
			"Check authentication if using a token",
		}
	}

	return result
}

func printDiagnostics(w io.Writer, results []DiagnosticResult, opts *DiagnoseOptions) {
	headerColor.Fprintln(w, "=== logsniff Configuration Diagnostics ===")
	fmt.Fprintln(w)

	for _, r := range results {
		switch r.Status {
		case statusOK:
			passColor.Fprint(w, "[PASS]")
		case statusWarning:
			warnColor.Fprint(w, "[WARN]")
		case statusError:
			failColor.Fprint(w, "[FAIL]")
		}
		fmt.Fprintf(w, " %s\n", r.Check)
		fmt.Fprintf(w, "    %s\n", r.Message)

		if opts.Verbose || r.Status != statusOK {
			for _, d := range r.Details {
				fmt.Fprintf(w, "      - %s\n", d)
			}
		}

		for _, s := range r.Suggests {
			fmt.Fprintf(w, "      Hint: %s\n", s)
		}
		fmt.Fprintln(w)
	}

	okCount := countStatus(results, statusOK)
	warnCount := countStatus(results, statusWarning)
	errCount := countStatus(results, statusError)

	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

	switch {
	case errCount > 0:
		fmt.Fprintln(w, "\nFix the errors above before parsing.")
	case warnCount > 0:
		fmt.Fprintln(w, "\nConfiguration is usable but has warnings.")
	default:
		fmt.Fprintln(w, "\nConfiguration looks good!")
	}
}

func countStatus(results []DiagnosticResult, status string) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
