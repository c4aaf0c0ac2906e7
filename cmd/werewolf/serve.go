package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/werewolf/internal/config"
)

func newServeCmd(o *options) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live table and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			printStartupSummary(cmd, o.cfg)

			application, cleanup, err := o.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if watch && o.configPath != "" {
				w, err := config.NewWatcher(o.configPath, func(_, next *config.Config, changes config.Changes) {
					application.ApplyConfig(next, changes)
				})
				if err != nil {
					slog.Warn("config hot reload disabled", "err", err)
				} else {
					go func() {
						if err := w.Run(ctx); err != nil {
							slog.Warn("config hot reload stopped", "err", err)
						}
					}()
				}
			}

			slog.Info("server ready; press Ctrl+C to shut down")
			if err := application.Serve(ctx); err != nil {
				return err
			}
			slog.Info("shutdown signal received, stopping")
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes")
	return cmd
}

func printStartupSummary(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(out, "║        Werewolf startup summary       ║")
	fmt.Fprintln(out, "╠═══════════════════════════════════════╣")
	printProvider(cmd, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Fprintf(out, "║  LLM fallbacks   : %-19d ║\n", len(cfg.Providers.LLMFallbacks))
	printProvider(cmd, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Fprintf(out, "║  TTS fallbacks   : %-19d ║\n", len(cfg.Providers.TTSFallbacks))
	table := cfg.Game.Preset
	if len(cfg.Game.Roles) > 0 {
		table = fmt.Sprintf("custom (%d)", len(cfg.Game.Roles))
	}
	fmt.Fprintf(out, "║  Table           : %-19s ║\n", table)
	if cfg.Game.HumanSeat > 0 {
		fmt.Fprintf(out, "║  Human seat      : %-19d ║\n", cfg.Game.HumanSeat)
	} else {
		fmt.Fprintf(out, "║  Human seat      : %-19s ║\n", "(all AI)")
	}
	fmt.Fprintf(out, "║  Actors          : %-19d ║\n", len(cfg.Actors))
	fmt.Fprintf(out, "║  Archive         : %-19s ║\n", cfg.Archive.Backend)
	fmt.Fprintf(out, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Fprintln(out, "╚═══════════════════════════════════════╝")
}

func printProvider(cmd *cobra.Command, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:16]) + "…"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "║  %-12s    : %-19s ║\n", kind, value)
}
