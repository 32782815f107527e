package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/formatter"
)

var (
	configShow bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View driftwatch configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (DRIFTWATCH_*)
  3. Project config (.driftwatch/config.yaml)
  4. Home config (~/.driftwatch/config.yaml)
  5. Defaults

Environment variables:
  DRIFTWATCH_CONFIG              - Explicit config file path (overrides the project config location)
  DRIFTWATCH_OUTPUT              - Default output format (table, json)
  DRIFTWATCH_BASE_DIR            - Data directory path
  DRIFTWATCH_VERBOSE             - Enable debug logging (true/1)
  DRIFTWATCH_CRITICAL_THRESHOLD  - Critical entropy score
  DRIFTWATCH_SUSTAINED_MINUTES   - Minutes of elevated entropy before a warning
  DRIFTWATCH_MAX_INJECTED        - Growth vectors injected per turn
  DRIFTWATCH_MEMORY_BACKEND      - Memory store (sqlite, index, none)
  DRIFTWATCH_PRINCIPLES_FILE     - Principles document path
  DRIFTWATCH_QUIET_HOURS         - Investigation quiet hours (e.g. 22:00-07:00)

Examples:
  driftwatch config --show           # Show resolved configuration
  driftwatch config --show -o json   # Output as JSON`,
	RunE: runConfig,
}

var configEnvVars = []string{
	"DRIFTWATCH_CONFIG",
	"DRIFTWATCH_OUTPUT",
	"DRIFTWATCH_BASE_DIR",
	"DRIFTWATCH_VERBOSE",
	"DRIFTWATCH_CRITICAL_THRESHOLD",
	"DRIFTWATCH_SUSTAINED_MINUTES",
	"DRIFTWATCH_MAX_INJECTED",
	"DRIFTWATCH_MEMORY_BACKEND",
	"DRIFTWATCH_PRINCIPLES_FILE",
	"DRIFTWATCH_QUIET_HOURS",
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}

	format, err := outputFormat()
	if err != nil {
		return err
	}
	resolved := config.Resolve(output, baseDir, verbose)

	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, resolved)
	}

	fmt.Fprintln(w, "driftwatch Configuration")
	fmt.Fprintln(w, "========================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Config files:")
	home, _ := os.UserHomeDir()
	printConfigFile(w, "Home:   ", filepath.Join(home, ".driftwatch", "config.yaml"))
	project := strings.TrimSpace(os.Getenv("DRIFTWATCH_CONFIG"))
	if project == "" {
		cwd, _ := os.Getwd()
		project = filepath.Join(cwd, ".driftwatch", "config.yaml")
	}
	printConfigFile(w, "Project:", project)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Resolved values:")
	if err := formatter.KeyValues(w, [][2]string{
		{"  output", fmt.Sprintf("%v  (from %s)", resolved.Output.Value, resolved.Output.Source)},
		{"  base_dir", fmt.Sprintf("%v  (from %s)", resolved.BaseDir.Value, resolved.BaseDir.Source)},
		{"  verbose", fmt.Sprintf("%v  (from %s)", resolved.Verbose.Value, resolved.Verbose.Source)},
		{"  memory.backend", fmt.Sprintf("%v  (from %s)", resolved.MemoryBackend.Value, resolved.MemoryBackend.Source)},
		{"  paths.principles_file", fmt.Sprintf("%v  (from %s)", resolved.PrinciplesFile.Value, resolved.PrinciplesFile.Source)},
		{"  governance.quiet_start", fmt.Sprintf("%v  (from %s)", resolved.QuietStart.Value, resolved.QuietStart.Source)},
		{"  governance.quiet_end", fmt.Sprintf("%v  (from %s)", resolved.QuietEnd.Value, resolved.QuietEnd.Source)},
	}); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables (if set):")
	anySet := false
	for _, env := range configEnvVars {
		if v := os.Getenv(env); v != "" {
			fmt.Fprintf(w, "  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Fprintln(w, "  (none set)")
	}
	return nil
}

func printConfigFile(w io.Writer, label, path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  ✓ %s %s\n", label, path)
		return
	}
	fmt.Fprintf(w, "  ✗ %s %s (not found)\n", label, path)
}
