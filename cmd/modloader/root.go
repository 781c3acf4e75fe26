package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/modloader/internal/config"
	"github.com/seantiz/modloader/internal/fetch"
	"github.com/seantiz/modloader/internal/jsrt"
	"github.com/seantiz/modloader/internal/loader"
)

var (
	// Flags shared by every command. When set they take precedence over the
	// MODLOADER_* environment.
	logLevel     string
	loaderConfig string
	resourceRoot string
	baseURL      string
	strictDefine bool
	debugSources bool

	rootCmd = &cobra.Command{
		Use:   "modloader",
		Short: "Load and inspect AMD-style JavaScript modules",
		Long: `modloader resolves module names, fetches module bodies and runs their
factories in dependency order inside an embedded JavaScript runtime.

Examples:
  modloader run app/main             Load a module and print its export
  modloader run --script boot.js     Evaluate a script, then report the registry
  modloader serve                    Serve the inspection API and resources
  modloader bundle add vendor ./lib  Store a directory of modules as a bundle`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&loaderConfig, "config", "c", "", "loader tables file (YAML)")
	rootCmd.PersistentFlags().StringVar(&resourceRoot, "root", "", "directory scheme-less resource URLs are read from")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "URL of the empty resource prefix")
	rootCmd.PersistentFlags().BoolVar(&strictDefine, "strict", false, "fail on anonymous definitions without a name to adopt")
	rootCmd.PersistentFlags().BoolVar(&debugSources, "debug-sources", false, "load -dbg variants of resources first")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bundleCmd)
}

// loadConfig reads the environment and applies the flags that were set.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Load()
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = config.ParseLogLevel(logLevel)
	}
	if flags.Changed("config") {
		cfg.LoaderConfig = loaderConfig
	}
	if flags.Changed("root") {
		cfg.ResourceRoot = resourceRoot
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = baseURL
	}
	if flags.Changed("strict") {
		cfg.StrictDefine = strictDefine
	}
	if flags.Changed("debug-sources") {
		cfg.DebugSources = debugSources
	}
	return cfg
}

// loaderOptions maps the configuration onto loader options.
func loaderOptions(cfg config.Config, logger *slog.Logger, rec fetch.Recorder) loader.Options {
	return loader.Options{
		Debug:            cfg.DebugSources,
		StrictDefine:     cfg.StrictDefine,
		AllowReexecution: cfg.AllowReexecution,
		DevAssertions:    cfg.DevAssertions,
		TaskBudget:       cfg.MaxTaskDuration,
		BaseURL:          cfg.BaseURL,
		Logger:           logger,
		Getter:           fetch.NewDefaultRegistry(cfg.ResourceRoot),
		Recorder:         rec,
	}
}

// newRuntime starts a runtime and registers the loader tables file, if one
// is configured.
func newRuntime(cfg config.Config, logger *slog.Logger, rec fetch.Recorder) (*jsrt.Runtime, error) {
	rt, err := jsrt.New(loaderOptions(cfg, logger, rec))
	if err != nil {
		return nil, fmt.Errorf("start runtime: %w", err)
	}
	if cfg.LoaderConfig == "" {
		return rt, nil
	}
	f, err := config.LoadLoaderFile(cfg.LoaderConfig)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.WithLoader(f.Apply); err != nil {
		// Rejected paths leave the rest of the tables in place.
		logger.Warn("loader config partially applied", "path", cfg.LoaderConfig, "error", err)
	}
	return rt, nil
}

// stderrLogger keeps stdout free for command output.
func stderrLogger(cfg config.Config) *slog.Logger {
	return config.NewLogger(os.Stderr, cfg.LogLevel)
}
