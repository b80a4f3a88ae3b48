package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/getmockd/testproxy/pkg/admin"
	"github.com/getmockd/testproxy/pkg/config"
	"github.com/getmockd/testproxy/pkg/logging"
	"github.com/getmockd/testproxy/pkg/metrics"
	"github.com/getmockd/testproxy/pkg/proxy"
	"github.com/getmockd/testproxy/pkg/store"
)

type serveFlags struct {
	configFile     string
	listen         string
	rootDir        string
	logLevel       string
	logFormat      string
	logFile        string
	maxBodyBytes   int64
	consumption    string
	preloadDir     string
	preloadPattern string
}

func newServeCommand() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the record/playback proxy",
		Long: `Start the record/playback proxy.

Flags override values from the configuration file.`,
		Example: `  # Serve recordings below ./recordings on the default port
  testproxy serve --root ./recordings

  # Serve with a configuration file and debug logging
  testproxy serve --config proxy.yaml --log-level debug

  # Preload recordings into memory for in-memory playback
  testproxy serve --preload-dir ./fixtures --preload-pattern "**/*.json"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, &f)
			if err != nil {
				return err
			}

			var logFile io.Writer
			if cfg.Log.File != "" {
				file, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer func() { _ = file.Close() }()
				logFile = file
			}
			log := logging.New(logging.Config{
				Level:  logging.ParseLevel(cfg.Log.Level),
				Format: logging.ParseFormat(cfg.Log.Format),
				Output: cmd.ErrOrStderr(),
				File:   logFile,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			srv, _, err := buildServer(ctx, cfg, log, reg)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx, cfg.Listen)
		},
	}

	f.register(cmd.Flags())
	return cmd
}

func (f *serveFlags) register(flags *pflag.FlagSet) {
	flags.StringVarP(&f.configFile, "config", "c", "", "Path to configuration file (default: "+DefaultConfigPath()+" when present)")
	flags.StringVarP(&f.listen, "listen", "l", config.DefaultListen, "Address to listen on")
	flags.StringVar(&f.rootDir, "root", "", "Directory relative recording paths resolve against (default: per-user data dir)")
	flags.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "Log format (text, json)")
	flags.StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this file")
	flags.Int64Var(&f.maxBodyBytes, "max-body-bytes", config.DefaultMaxBodyBytes, "Maximum captured body size")
	flags.StringVar(&f.consumption, "consumption", config.DefaultConsumption, "Playback entry consumption (sequential, reuse)")
	flags.StringVar(&f.preloadDir, "preload-dir", "", "Load recordings below this directory into memory at startup")
	flags.StringVar(&f.preloadPattern, "preload-pattern", "", "Glob selecting preloaded recordings (default: **/*.json)")
}

// DefaultConfigPath is the configuration file serve reads when --config is
// not given.
func DefaultConfigPath() string {
	return filepath.Join(store.DefaultConfigDir(), "config.yaml")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadServeConfig reads the configuration file, if any, and applies the
// flags the user set explicitly.
func loadServeConfig(cmd *cobra.Command, f *serveFlags) (*config.Config, error) {
	cfg := config.Default()
	path := f.configFile
	if path == "" {
		if p := DefaultConfigPath(); fileExists(p) {
			path = p
		}
	}
	if path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = f.listen
	}
	if flags.Changed("root") {
		cfg.RootDir = f.rootDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = f.logFile
	}
	if flags.Changed("max-body-bytes") {
		cfg.MaxBodyBytes = f.maxBodyBytes
	}
	if flags.Changed("consumption") {
		cfg.Consumption = f.consumption
	}
	if flags.Changed("preload-dir") || flags.Changed("preload-pattern") {
		if cfg.Preload == nil {
			cfg.Preload = &config.PreloadConfig{}
		}
		if flags.Changed("preload-dir") {
			cfg.Preload.Dir = f.preloadDir
		}
		if flags.Changed("preload-pattern") {
			cfg.Preload.Pattern = f.preloadPattern
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildServer wires storage, metrics, the recording handler and the HTTP
// server from cfg.
func buildServer(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*admin.Server, *proxy.RecordingHandler, error) {
	files, err := store.NewFileStorage(cfg.RootDir)
	if err != nil {
		return nil, nil, err
	}

	memory := store.NewMemoryStorage()
	if cfg.Preload != nil {
		n, err := memory.Preload(ctx, cfg.Preload.Dir, cfg.Preload.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to preload recordings: %w", err)
		}
		log.Info("recordings preloaded", "dir", cfg.Preload.Dir, "count", n)
	}

	m, err := metrics.New(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	consumption := proxy.ConsumeSequential
	if strings.EqualFold(cfg.Consumption, string(proxy.ConsumeReuse)) {
		consumption = proxy.ConsumeReuse
	}

	handler := proxy.NewRecordingHandler(files,
		proxy.WithLogger(log),
		proxy.WithMetrics(m),
		proxy.WithMemoryStorage(memory),
		proxy.WithConsumption(consumption),
	)

	ext, err := cfg.BuildExtensions()
	if err != nil {
		return nil, nil, err
	}
	for _, s := range ext.Sanitizers {
		if err := handler.AddSanitizer("", s); err != nil {
			return nil, nil, err
		}
	}
	for _, t := range ext.Transforms {
		if err := handler.AddTransform("", t); err != nil {
			return nil, nil, err
		}
	}
	if ext.Matcher != nil {
		if err := handler.SetMatcher("", ext.Matcher); err != nil {
			return nil, nil, err
		}
	}

	log.Info("recording root", "dir", files.Root())

	srv := admin.New(handler,
		admin.WithLogger(log),
		admin.WithMetricsHandler(metrics.Handler(reg)),
		admin.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	return srv, handler, nil
}
