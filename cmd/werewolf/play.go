package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/werewolf/internal/game"
)

func newPlayCmd(o *options) *cobra.Command {
	var (
		fast     bool
		thoughts bool
		seed     uint64
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one all-AI game headless and print the god's transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fast {
				o.cfg.Pacing.PollInterval = 0
				o.cfg.Pacing.SpeechDelay = 0
				o.cfg.Pacing.PhaseDelayMin = 0
				o.cfg.Pacing.PhaseDelayMax = 0
				o.cfg.Audio.Enabled = false
			}
			if seed != 0 {
				o.cfg.Game.Seed = seed
			}

			application, cleanup, err := o.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			a, err := application.Play(cmd.Context(), func(e game.Entry) {
				printEntry(out, e, nil, thoughts)
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\n对局 %s 结束：%s（%d 轮）\n", a.ID, a.Winner, a.Turns)
			printRoster(out, a.Players)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fast, "fast", false, "skip every pause and disable audio")
	cmd.Flags().BoolVar(&thoughts, "thoughts", false, "print each speaker's private reasoning")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "override game.seed")
	return cmd
}
