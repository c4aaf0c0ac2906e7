package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/theater"
)

func newReplayCmd(o *options) *cobra.Command {
	var perspective string
	cmd := &cobra.Command{
		Use:   "replay <id>",
		Short: "Replay an archived game through a perspective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := game.ParsePerspective(perspective)
			if err != nil {
				return err
			}

			application, cleanup, err := o.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			a, err := application.Archives().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			names := seatNames(a.Players)
			out := cmd.OutOrStdout()

			last := -1
			res, err := application.Replay(cmd.Context(), a.ID, p, func(f theater.Frame) {
				if !f.Visible || f.Index == last {
					return
				}
				last = f.Index
				printEntry(out, f.Entry, names, p == game.PerspectiveGod)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n回放结束：%d 条可见，%d 条语音\n", len(res.Visible), res.Played)
			return nil
		},
	}
	cmd.Flags().StringVarP(&perspective, "perspective", "p", string(game.PerspectiveGod), "GOD, GOOD or WOLF")
	return cmd
}
