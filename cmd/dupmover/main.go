package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dupmover/internal/config"
	"dupmover/internal/filter"
	"dupmover/internal/hash"
	"dupmover/internal/logging"
	"dupmover/internal/manifest"
	"dupmover/internal/metrics"
	"dupmover/internal/mover"
	"dupmover/internal/progress"
	"dupmover/internal/report"
	"dupmover/internal/verify"
	"dupmover/internal/walker"
)

const defaultConfigPath = "dupmover.yaml"

var errProblems = errors.New("verification found problems")

var (
	configPath  string
	verbosity   int
	reportDir   string
	chunkSize   int
	digest      string
	logFile     string
	metricsFile string
	noProgress  bool
	workers     int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dupmover [flags] <directory> [duplicate-folder]",
	Short: "Move byte-identical duplicate files into a holding folder",
	Long: `dupmover walks a directory tree, hashes every file and moves each later
copy of already-seen content into a duplicate folder (default "duplicates",
created if missing). The first file seen with given content stays in place.
A CSV/JSON report and summary tables are produced when duplicates are found.`,
	Args:         cobra.RangeArgs(1, 2),
	SilenceUsage: true,
	RunE:         runScan,
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("report-dir") {
		cfg.ReportDir = reportDir
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}
	if flags.Changed("digest") {
		cfg.Digest = hash.Algorithm(digest)
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	directory := args[0]
	folder := cfg.DuplicateFolder
	if len(args) == 2 {
		folder = args[1]
	}

	absDirectory, err := filepath.Abs(directory)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	absFolder, err := filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	runID := uuid.New().String()
	logger, err := logging.Setup(logging.Options{
		Verbosity: verbosity,
		LogFile:   cfg.LogFile,
		RunID:     runID,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logger.Close()

	hasher, err := hash.New(cfg.Digest, cfg.ChunkSize)
	if err != nil {
		return err
	}

	bar := progress.New()
	if noProgress {
		bar = progress.NewWriter(os.Stdout, false)
	}
	collector := metrics.New()

	logger.Info().
		Str("root", absDirectory).
		Str("duplicate_folder", absFolder).
		Str("digest", string(hasher.Algorithm())).
		Int("chunk_size", cfg.ChunkSize).
		Msg("Run started")
	fmt.Printf("Scanning directory: %s\n", absDirectory)

	result, walkErr := walker.Run(cmd.Context(), walker.Options{
		Root:     absDirectory,
		Mover:    mover.New(absFolder, logger.Logger),
		Filter:   filter.New(cfg.ExcludedDirs, cfg.HiddenPrefixes, cfg.ExcludedExtensions),
		Hasher:   hasher,
		Logger:   logger.Logger,
		Metrics:  collector,
		Progress: bar,
	})
	bar.Finish()
	if result == nil {
		logger.Error().Err(walkErr).Msg("Run aborted")
		return walkErr
	}
	if walkErr != nil {
		logger.Warn().Err(walkErr).Msg("Run interrupted; reporting partial results")
	}

	m, err := manifest.Build(runID, result.Root, absFolder, hasher.Algorithm(), result.Duplicates)
	if err != nil {
		return fmt.Errorf("failed to build manifest: %w", err)
	}

	artifacts, err := report.Generate(cfg.ReportDir, m, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to generate reports: %w", err)
	}

	if cfg.MetricsFile != "" {
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to write metrics file")
		}
	}

	logging.LogDuration(logger.Logger, start, "scan")

	fmt.Printf("✓ Process completed\n")
	fmt.Printf("  Files processed: %d\n", result.Processed)
	fmt.Printf("  Duplicates:      %d (%d moved)\n", len(result.Duplicates), result.Moved())
	fmt.Printf("  Skipped:         %d\n", len(result.Skipped))
	if len(artifacts) > 0 {
		fmt.Printf("  Reports:         %s\n", cfg.ReportDir)
	}
	fmt.Printf("  Log file:        %s\n", logger.Path)

	if len(result.Errors) > 0 {
		fmt.Printf("\n⚠ %d duplicates could not be moved\n", len(result.Errors))
	}

	return walkErr
}

var verifyCmd = &cobra.Command{
	Use:          "verify <manifest.json>",
	Short:        "Check that moved duplicates and their originals are still intact",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load manifest: %w", err)
		}

		fmt.Printf("Loaded manifest (run %s, %d records)\n", m.RunID, len(m.Records))

		result, err := verify.Verify(m, chunkSize, workers)
		if err != nil {
			return err
		}

		fmt.Print(verify.FormatReport(result))
		if result.HasProblems() {
			return errProblems
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default exclusion tables",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}

		if err := config.Init(path, config.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Config file path (.yaml or .toml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase console log verbosity (repeatable)")

	flags := rootCmd.Flags()
	flags.StringVar(&reportDir, "report-dir", "", "Directory for report files (overrides config)")
	flags.IntVar(&chunkSize, "chunk-size", hash.DefaultChunkSize, "Read buffer size in bytes for hashing")
	flags.StringVar(&digest, "digest", "", "Digest algorithm: xxhash, xxh3, blake3 or md5")
	flags.StringVar(&logFile, "log-file", "", "Log file path (default under XDG state home)")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	flags.BoolVar(&noProgress, "no-progress", false, "Disable the progress line")

	verifyCmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU()*2, "Number of worker goroutines")
	verifyCmd.Flags().IntVar(&chunkSize, "chunk-size", hash.DefaultChunkSize, "Read buffer size in bytes for hashing")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(verifyCmd, configCmd)
}
