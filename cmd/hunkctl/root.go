package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joshuapare/hunkkit/hunk/printer"
	"github.com/joshuapare/hunkkit/internal/logger"
	"github.com/joshuapare/hunkkit/internal/writer"
	"github.com/joshuapare/hunkkit/pkg/memory"
)

var (
	// Global flags
	verbose    bool
	jsonOut    bool
	logFile    string
	configPath string
	heapKiB    int
	zoneKiB    int
	debugCheck bool
	outputPath string
)

var closeLog = func() error { return nil }

var rootCmd = &cobra.Command{
	Use:   "hunkctl",
	Short: "Inspect and exercise a hunk memory arena",
	Long: `hunkctl reserves a hunk arena with its zone and cache, runs workloads
of stack allocations and texture loads against it, and reports the resulting
memory layout per category.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		fn, err := logger.Init(logger.Options{Enabled: verbose || logFile != "", File: logFile, Level: level})
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		closeLog = fn
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write JSON logs to this file")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML memory config")
	rootCmd.PersistentFlags().IntVar(&heapKiB, "heapsize", 0, "Arena size in KiB (required unless --config)")
	rootCmd.PersistentFlags().IntVar(&zoneKiB, "zone", 0, "Zone size in KiB (default 48)")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "Write the report to this file instead of stdout")
	rootCmd.PersistentFlags().BoolVar(&debugCheck, "debug-checks", false, "Verify the zone after every operation")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig merges --config with the size flags. Flags win.
func loadConfig() (memory.Config, error) {
	var cfg memory.Config
	if configPath != "" {
		c, err := memory.LoadConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = *c
	}
	if heapKiB > 0 {
		cfg.ArenaSize = memory.Size(heapKiB << 10)
	}
	if zoneKiB > 0 {
		cfg.ZoneSize = memory.Size(zoneKiB << 10)
	}
	if debugCheck {
		cfg.DebugChecks = true
	}
	if cfg.ArenaSize == 0 {
		return cfg, errors.New("--heapsize or --config is required")
	}
	return cfg, nil
}

// openMemory builds a Memory whose fatal errors are logged and returned
// instead of panicking.
func openMemory() (*memory.Memory, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return memory.New(cfg, memory.WithFatalHandler(func(err error) {
		logger.L.Error("fatal memory error", "err", err)
	}))
}

func reportOptions() printer.Options {
	opts := printer.DefaultOptions()
	if jsonOut {
		opts.Format = printer.FormatJSON
	}
	return opts
}

// sink returns where a finished report goes.
func sink(w io.Writer) writer.Sink {
	if outputPath != "" {
		return &writer.FileWriter{Path: outputPath}
	}
	return writer.StreamWriter{W: w}
}
