package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/miradorstack/mirador-synergy/internal/api"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

const defaultServerAddr = "localhost:50061"

func dial(addr string) (*api.Client, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return api.NewClient(conn), conn.Close, nil
}

func suggestionsCommand() *cobra.Command {
	var (
		addr    string
		req     api.ListSuggestionsRequest
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "List the latest suggestions from a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeConn, err := dial(addr)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			list, err := client.ListSuggestions(ctx, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultServerAddr, "gRPC address of the engine")
	cmd.Flags().Float64Var(&req.MinConfidence, "min-confidence", 0, "Only show suggestions at or above this confidence")
	cmd.Flags().StringVar(&req.Kind, "kind", "", "Filter by kind (synergy or pattern)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum number of suggestions")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}

func feedbackCommand() *cobra.Command {
	var (
		addr    string
		fb      models.Feedback
		reject  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "feedback <suggestion-id>",
		Short: "Accept or reject a suggestion on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fb.SuggestionID = args[0]
			fb.Accepted = !reject

			client, closeConn, err := dial(addr)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ack, err := client.SubmitFeedback(ctx, fb)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded feedback for %s (%d samples)\n", ack.SuggestionID, ack.Samples)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultServerAddr, "gRPC address of the engine")
	cmd.Flags().BoolVar(&reject, "reject", false, "Reject instead of accept")
	cmd.Flags().IntVar(&fb.Rating, "rating", 0, "Optional 1-5 rating")
	cmd.Flags().StringVar(&fb.Text, "text", "", "Optional comment")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}
