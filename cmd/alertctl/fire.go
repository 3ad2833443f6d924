package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/opsalert/internal/api"
	"github.com/gyaneshwarpardhi/opsalert/internal/dispatch"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
)

func newFireCmd(opts *options) *cobra.Command {
	var (
		data    string
		file    string
		eventID string
	)
	cmd := &cobra.Command{
		Use:   "fire <type>",
		Short: "Fire one alert of the given type",
		Example: `  alertctl fire security.failed_login --data '{"email":"a@example.com","ip_address":"203.0.113.9","attempts":12}'
  alertctl fire business.high_value_sale --file sale.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(data, file)
			if err != nil {
				return err
			}
			req := api.FireRequest{Meta: event.Meta{ID: eventID}, Data: payload}

			ctx, cancel := requestContext(opts)
			defer cancel()
			var receipt dispatch.Receipt
			err = newClient(opts).do(ctx, http.MethodPost, "/v1/alerts/"+url.PathEscape(args[0]), req, &receipt)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event_id=%s type=%s severity=%s queue=%s\n",
				receipt.EventID, receipt.EventType, receipt.Severity, receipt.Queue)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "alert fields as inline JSON")
	cmd.Flags().StringVar(&file, "file", "", "read alert fields from a JSON file (- for stdin)")
	cmd.Flags().StringVar(&eventID, "id", "", "event id (generated by the server when empty)")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
	return cmd
}

func readPayload(data, file string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case data != "":
		raw = []byte(data)
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		raw = b
	default:
		return nil, errors.New("one of --data or --file is required")
	}
	if !json.Valid(raw) {
		return nil, errors.New("alert fields are not valid JSON")
	}
	return raw, nil
}

func newTypesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the alert types the server accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(opts)
			defer cancel()
			var body struct {
				Types []struct {
					Type     string `json:"type"`
					Category string `json:"category"`
				} `json:"types"`
			}
			if err := newClient(opts).do(ctx, http.MethodGet, "/v1/alerts/types", nil, &body); err != nil {
				return err
			}
			for _, t := range body.Types {
				fmt.Fprintf(cmd.OutOrStdout(), "%-34s %s\n", t.Type, t.Category)
			}
			return nil
		},
	}
}
