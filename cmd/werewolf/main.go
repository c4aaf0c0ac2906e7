// Command werewolf runs the AI werewolf table: a live server with a web API,
// headless games, replays of archived games and the podcast debate.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/werewolf/internal/app"
	"github.com/MrWong99/werewolf/internal/config"
	"github.com/MrWong99/werewolf/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "werewolf: %v\n", err)
		return 1
	}
	return 0
}

// options holds the persistent flags and the state PersistentPreRunE builds.
type options struct {
	configPath string
	envFile    string
	logFormat  string

	cfg   *config.Config
	level *slog.LevelVar
}

func newRootCmd() *cobra.Command {
	o := &options{level: new(slog.LevelVar)}
	root := &cobra.Command{
		Use:   "werewolf",
		Short: "AI werewolf table with narrated games, replays and debates",
		Long: `werewolf seats language-model players around a werewolf (狼人杀) table,
narrates every phase through a text-to-speech voice, archives finished games
and replays them from the god, villager or wolf perspective.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before the config is expanded")
	root.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "override server.log_format (text, json)")

	root.AddCommand(
		newServeCmd(o),
		newPlayCmd(o),
		newReplayCmd(o),
		newArchivesCmd(o),
		newDebateCmd(o),
		newVersionCmd(),
	)
	return root
}

// setup loads the dotenv file and the config and installs the logger.
func (o *options) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", o.envFile, err)
	}

	cfg, err := config.Load(o.configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		// No config at the default path: run on defaults.
		cfg, err = config.LoadFromReader(strings.NewReader(""))
		if err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", o.configPath)
	case err != nil:
		return err
	}
	if o.logFormat != "" {
		cfg.Server.LogFormat = config.LogFormat(o.logFormat)
		if !cfg.Server.LogFormat.IsValid() {
			return fmt.Errorf("--log-format %q is invalid; valid values: text, json", o.logFormat)
		}
	}
	o.cfg = cfg

	o.level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Server.LogFormat, o.level))
	return nil
}

// bootstrap starts telemetry, builds the providers and wires the app. The
// returned cleanup shuts both down.
func (o *options) bootstrap(ctx context.Context) (*app.App, func(), error) {
	tel, err := observe.Init(ctx, observe.TelemetryConfig{
		ServiceName:    "werewolf",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init telemetry: %w", err)
	}
	abort := func(err error) (*app.App, func(), error) {
		_ = tel.Shutdown(context.Background())
		return nil, nil, err
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	providers, err := app.BuildProviders(o.cfg, reg, tel.Metrics())
	if err != nil {
		return abort(err)
	}

	application, err := app.New(ctx, o.cfg, providers, app.WithTelemetry(tel), app.WithLogLevel(o.level))
	if err != nil {
		return abort(err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}
	return application, cleanup, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, format config.LogFormat, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
