package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/formatter"
)

var (
	// Global flags
	verbose bool
	output  string
	cfgFile string
	baseDir string
	agentID string

	// Set up by PersistentPreRunE.
	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "Behavioral drift monitor for conversational agents",
	Long: `driftwatch observes an agent's turns and tool calls and scores them for
behavioral drift: hallucinated progress, topic drift, repetitive tool loops
and loss of configured principles.

Hook integration:
  hook         One-shot hook handlers (JSON on stdin)
  serve        Long-lived JSONL event loop for many agents

Inspection:
  status       Show an agent's entropy, tensions and feedback
  vectors      List, rank and curate growth vectors
  investigate  Ask the investigation budget for permission
  analyze      Replay transcripts through an isolated agent
  config       Show resolved configuration
  version      Show version information`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		syncConfigFlagToEnv()

		zc := zap.NewProductionConfig()
		zc.OutputPaths = []string{"stderr"}
		zc.ErrorOutputPaths = []string{"stderr"}
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		cfg, err = config.Load(&config.Config{Output: output, BaseDir: baseDir, Verbose: verbose})
		if err != nil {
			return err
		}
		if cfg.Verbose && !verbose {
			zc.Level.SetLevel(zapcore.DebugLevel)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .driftwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Data directory (default: .agents/driftwatch)")
	rootCmd.PersistentFlags().StringVar(&agentID, "agent", "", "Agent ID (default: main)")
}

// outputFormat returns the resolved output format.
func outputFormat() (formatter.Format, error) {
	if cfg == nil {
		return formatter.ParseFormat(output)
	}
	return formatter.ParseFormat(cfg.Output)
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv("DRIFTWATCH_CONFIG", path) //nolint:errcheck // best-effort
}
