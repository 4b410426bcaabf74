package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ptagraph/internal/config"
	"ptagraph/internal/factdb"
	"ptagraph/internal/logging"
	"ptagraph/internal/pta"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string
	cachePath  string
	app        string
	timeout    time.Duration

	// Resolved configuration
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ptagraph",
	Short: "Query a precomputed points-to analysis",
	Long: `ptagraph loads the output of a whole-program points-to analysis
(a directory of .facts files or a SQLite fact database) and materializes it
into an object graph: points-to sets, allocation sites, call edges, receiver
objects and declaring types.

The database location, cache location and application are taken from the
config file, PTAGRAPH_* environment variables, or the flags below.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = resolveConfig(cmd)
		if err != nil {
			return err
		}
		if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Options()); err != nil {
			logger.Warn("File logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// statsCmd builds the analysis and prints a summary
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Build the analysis and print entity counts",
	Args:  cobra.NoArgs,
	RunE:  showStats,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".ptagraph/config.yaml", "Config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Fact database: .facts directory or SQLite file")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "Query cache directory")
	rootCmd.PersistentFlags().StringVar(&app, "app", "", "Application identifier")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfig loads the config file and applies the flags the user set.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		c.Facts.DBPath = dbPath
	}
	if flags.Changed("cache") {
		c.Facts.CachePath = cachePath
	}
	if flags.Changed("app") {
		c.Facts.App = app
	}
	if verbose {
		c.Logging.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// buildAnalysis opens the configured fact source and materializes it. The
// source is closed before returning; the Analysis does not reference it.
func buildAnalysis(ctx context.Context) (*pta.Analysis, error) {
	opts := factdb.FromConfig(cfg)
	logger.Debug("Opening fact source",
		zap.String("db", opts.DBPath),
		zap.String("cache", opts.CachePath),
		zap.String("app", opts.App))

	src, err := factdb.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open fact source: %w", err)
	}
	defer src.Close()

	a, err := pta.New(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("points-to analysis failed: %w", err)
	}
	st := a.Stats()
	logger.Info("Analysis built",
		zap.String("run", st.RunID),
		zap.Int("methods", st.Methods),
		zap.Int("objects", st.Objects),
		zap.Duration("duration", st.Duration))
	return a, nil
}

// showStats prints the counts of a freshly built analysis
func showStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := buildAnalysis(ctx)
	if err != nil {
		return err
	}
	st := a.Stats()
	diag := a.Diagnostics()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run:               %s\n", st.RunID)
	fmt.Fprintf(out, "variables:         %d\n", st.Variables)
	fmt.Fprintf(out, "methods:           %d (%d instance)\n", st.Methods, st.InstanceMethods)
	fmt.Fprintf(out, "reachable methods: %d\n", st.ReachableMethods)
	fmt.Fprintf(out, "objects:           %d (%d special)\n", st.Objects, st.SpecialObjects)
	fmt.Fprintf(out, "types:             %d\n", st.Types)
	fmt.Fprintf(out, "unresolved calls:  %d edges, %d call sites\n", diag.UnresolvedCallEdges, len(diag.UnresolvedCallSites))
	if verbose {
		for _, cs := range diag.UnresolvedCallSites {
			fmt.Fprintf(out, "  %s\n", cs)
		}
	}
	fmt.Fprintf(out, "built in:          %s\n", st.Duration.Round(time.Millisecond))
	return nil
}
