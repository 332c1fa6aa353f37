// Package cmd provides the CLI commands for loupe.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loupe-search/loupe/internal/logging"
	"github.com/loupe-search/loupe/internal/profiling"
	"github.com/loupe-search/loupe/pkg/version"
)

var (
	flagConfig       string
	flagDebug        bool
	flagProfileCPU   string
	flagProfileMem   string
	flagProfileTrace string

	profiler = profiling.NewProfiler()

	loggingCleanup func()
	cpuCleanup     func()
	traceCleanup   func()
)

// NewRootCmd creates the root command for the loupe CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loupe",
		Short: "Hybrid retrieval over analyzed document records",
		Long: `Loupe searches a corpus of analyzed document records by fusing
keyword (BM25) and vector similarity rankings. It degrades gracefully:
when the vector path is slow or misconfigured, queries still answer
from the keyword index.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("loupe version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: .loupe.yaml in the working directory)")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flagProfileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&flagProfileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&flagProfileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = setupRun
	cmd.PersistentPostRunE = teardownRun

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDiagnoseCmd())
	cmd.AddCommand(newInvalidateCmd())

	return cmd
}

func setupRun(cmd *cobra.Command, args []string) error {
	cfg := logging.DefaultConfig()
	cfg.Level = "warn"
	cfg.WriteToStderr = false
	if flagDebug {
		cfg.Level = "debug"
		cfg.WriteToStderr = true
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup

	if flagProfileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(flagProfileCPU)
		if err != nil {
			return err
		}
	}
	if flagProfileTrace != "" {
		traceCleanup, err = profiler.StartTrace(flagProfileTrace)
		if err != nil {
			return err
		}
	}
	return nil
}

func teardownRun(cmd *cobra.Command, args []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	var err error
	if flagProfileMem != "" {
		err = profiler.WriteHeap(flagProfileMem)
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
