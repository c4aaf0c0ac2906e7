package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newArchivesCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List or delete archived games",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived games, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, cleanup, err := o.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			summaries, err := application.Archives().List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMODE\tWINNER\tTURNS\tPLAYERS\tCREATED")
			for _, s := range summaries {
				winner := string(s.Winner)
				if s.Title != "" {
					winner = s.Title
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", s.ID, s.Mode, winner, s.Turns, s.PlayerCount, s.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")

	del := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete archived games",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cleanup, err := o.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			for _, id := range args {
				if err := application.Archives().Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}
