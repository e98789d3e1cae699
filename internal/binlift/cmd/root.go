package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"binlift/internal/analyzer"
	binliftlog "binlift/internal/binlift/log"
)

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (TOML)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().StringP("target", "t", "", "Skeleton language: go, python, c")
	rootCmd.PersistentFlags().String("arch", "", "Architecture hint for raw inputs: x86, x86_64")
	rootCmd.PersistentFlags().Int("min-string-length", 0, "Minimum printable run length for string extraction")
	rootCmd.PersistentFlags().Float64("entropy-threshold", 0, "Window entropy (bits/byte) above which data is flagged")
	rootCmd.PersistentFlags().Int64("max-scan-bytes", 0, "Truncate inputs larger than this many bytes")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Show summary without TUI")
	rootCmd.Flags().BoolP("full", "f", false, "Show full disassembly listings (implies --no-tui)")
	rootCmd.Flags().BoolP("json", "j", false, "Output results as JSON")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(runCmd)
}

var rootCmd = &cobra.Command{
	Use:   "binlift [file]",
	Short: "Terminal-based binary analysis and recovery tool",
	Long: `Binlift analyzes binary files: it detects the container format, recovers
printable strings, disassembles x86 code into functions and control-flow
graphs, classifies external API calls, checks for simple obfuscation, and
emits a code skeleton as a starting point for reconstruction.`,
	Example: `
# Explore a binary interactively
binlift /path/to/binary

# Print a full text report
binlift -f /path/to/binary

# Machine-readable output for scripting
binlift -j /path/to/binary | jq .functions
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup CPU profiling if requested
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		// Setup memory profiling if requested
		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		absPath, err := resolveInput(args[0])
		if err != nil {
			return err
		}

		a, target, err := buildAnalyzer(cmd)
		if err != nil {
			return err
		}

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		showFull, _ := cmd.Flags().GetBool("full")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		// --full implies --no-tui
		if showFull {
			noTUI = true
		}

		// Also use no-tui mode when output is being piped
		if !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
			os.Setenv("BINLIFT_NO_COLOR", "1")
		}

		if jsonOutput {
			return runJSON(a, absPath, target)
		}

		if noTUI {
			return runReport(a, absPath, target, showFull)
		}

		program := tea.NewProgram(
			NewModel(absPath, a, target),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	},
}

// resolveInput turns a user-supplied path into an absolute one and checks
// it exists before the pipeline touches it.
func resolveInput(file string) (string, error) {
	absPath, err := pathpkg.Abs(file)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %v", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", file)
		}
		return "", fmt.Errorf("cannot access file: %v", err)
	}
	return absPath, nil
}

// buildAnalyzer merges the config file with flag overrides, installs
// logging, and returns the analyzer plus the skeleton target.
func buildAnalyzer(cmd *cobra.Command) (*analyzer.Analyzer, string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, "", err
	}

	if v, _ := cmd.Flags().GetBool("debug"); v {
		cfg.Debug = true
	}
	if v, _ := cmd.Flags().GetString("log-file"); v != "" {
		cfg.LogFile = v
	}
	if v, _ := cmd.Flags().GetString("target"); v != "" {
		cfg.Target = v
	}
	if v, _ := cmd.Flags().GetString("arch"); v != "" {
		cfg.Arch = v
	}
	if v, _ := cmd.Flags().GetInt("min-string-length"); v > 0 {
		cfg.MinStringLength = v
	}
	if v, _ := cmd.Flags().GetFloat64("entropy-threshold"); v > 0 {
		cfg.EntropyThreshold = v
	}
	if v, _ := cmd.Flags().GetInt64("max-scan-bytes"); v > 0 {
		cfg.MaxScanBytes = v
	}

	binliftlog.Setup(cfg.LogFile, cfg.Debug)
	if cfg.Debug {
		// The TUI tracer keys off the env var, so the flag must reach it.
		os.Setenv("BINLIFT_LOG_LEVEL", "debug")
	}

	a := analyzer.New(analyzer.Options{
		MinStringLength:  cfg.MinStringLength,
		EntropyThreshold: cfg.EntropyThreshold,
		MaxScanBytes:     cfg.MaxScanBytes,
		Arch:             cfg.Arch,
		Logger:           slog.Default(),
	})
	return a, cfg.Target, nil
}

func Execute() {
	// Check if --no-tui, --full, or --json is present, or if output is
	// being piped, to bypass fang's automatic markdown rendering
	noTUI := false
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--no-tui", "-n", "--full", "-f", "--json", "-j":
			noTUI = true
		}
	}

	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	if noTUI {
		// Use cobra directly to avoid fang's automatic markdown rendering
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
	} else {
		if err := fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		); err != nil {
			os.Exit(1)
		}
	}
}
