package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	server  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "alertctl",
		Short:         "Fire alerts and manage dead letters on an opsalert server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	server := os.Getenv("OPSALERT_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "opsalert server URL (env OPSALERT_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(newFireCmd(opts), newTypesCmd(opts), newDeadLettersCmd(opts))
	return root
}
