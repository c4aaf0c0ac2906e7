package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDebateCmd(o *options) *cobra.Command {
	var (
		topic  string
		rounds int
	)
	cmd := &cobra.Command{
		Use:   "debate",
		Short: "Record a two-person podcast debate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rounds > 0 {
				o.cfg.Debate.Rounds = rounds
			}
			application, cleanup, err := o.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			a, err := application.Debate(cmd.Context(), topic)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			names := seatNames(a.Players)
			for _, e := range a.Log {
				printEntry(out, e, names, false)
			}
			fmt.Fprintf(out, "\n辩论已存档：%s\n", a.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "override debate.topic")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "override debate.rounds")
	return cmd
}
