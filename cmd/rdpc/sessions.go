package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bamsammich/rdpc/internal/config"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List running sessions that serve a status endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := config.ListSessions()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no running sessions")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTARGET\tSTATUS\tPID")
			for _, d := range list {
				fmt.Fprintf(tw, "%s\t%s\thttp://%s/session\t%s\n",
					d.ID, d.Target, d.StatusAddr, strconv.Itoa(d.PID))
			}
			return tw.Flush()
		},
	}
}
