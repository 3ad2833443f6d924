package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/opsalert/internal/dispatch"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

func newDeadLettersCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dead-letters",
		Aliases: []string{"dl"},
		Short:   "Inspect and replay jobs that exhausted their retries",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(opts)
			defer cancel()
			var body struct {
				DeadLetters []store.DeadLetter `json:"dead_letters"`
			}
			path := "/v1/dead-letters?limit=" + strconv.Itoa(limit)
			if err := newClient(opts).do(ctx, http.MethodGet, path, nil, &body); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(body.DeadLetters) == 0 {
				fmt.Fprintln(out, "No dead letters")
				return nil
			}
			for _, d := range body.DeadLetters {
				fmt.Fprintf(out, "%s  %-20s %-6s %-32s attempts=%d  %s\n",
					d.ID, d.Queue, d.JobName, d.EventType, d.Attempts, d.FailedAt.Format("2006-01-02 15:04:05"))
				if d.LastError != "" {
					fmt.Fprintf(out, "    last error: %s\n", d.LastError)
				}
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of dead letters to show")

	replay := &cobra.Command{
		Use:   "replay <id>",
		Short: "Queue a dead letter again and delete it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(opts)
			defer cancel()
			var receipt dispatch.Receipt
			path := "/v1/dead-letters/" + url.PathEscape(args[0]) + "/replay"
			if err := newClient(opts).do(ctx, http.MethodPost, path, nil, &receipt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %s: event_id=%s queue=%s\n", args[0], receipt.EventID, receipt.Queue)
			return nil
		},
	}

	cmd.AddCommand(list, replay)
	return cmd
}
