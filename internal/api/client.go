package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// Client calls a remote SynergyEngine.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	req, err := ToStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return FromStruct(resp, out)
}

// Analyze triggers a run on the server.
func (c *Client) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	var out models.AnalysisResult
	err := c.call(ctx, "Analyze", req, &out)
	return out, err
}

// ListSuggestions fetches the latest suggestions.
func (c *Client) ListSuggestions(ctx context.Context, req ListSuggestionsRequest) ([]models.Suggestion, error) {
	var out ListSuggestionsResponse
	if err := c.call(ctx, "ListSuggestions", req, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

// SubmitFeedback sends accept/reject feedback.
func (c *Client) SubmitFeedback(ctx context.Context, fb models.Feedback) (models.FeedbackAck, error) {
	var out models.FeedbackAck
	err := c.call(ctx, "SubmitFeedback", fb, &out)
	return out, err
}

// HealthCheck queries server health.
func (c *Client) HealthCheck(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.call(ctx, "HealthCheck", struct{}{}, &out)
	return out, err
}
