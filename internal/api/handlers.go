package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/services"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

// Service is what the transports need from the synergy service.
type Service interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error)
	ListSuggestions(minConfidence float64, kind string, limit int) []models.Suggestion
	SubmitFeedback(ctx context.Context, fb models.Feedback) (models.FeedbackAck, error)
	Patterns(ctx context.Context) ([]models.Pattern, error)
	Ready() bool
}

// ListSuggestionsRequest filters the latest suggestions.
type ListSuggestionsRequest struct {
	MinConfidence float64 `json:"min_confidence,omitempty"`
	Kind          string  `json:"kind,omitempty"`
	Limit         int     `json:"limit,omitempty"`
}

// ListSuggestionsResponse wraps a suggestion listing.
type ListSuggestionsResponse struct {
	Suggestions []models.Suggestion `json:"suggestions"`
}

// HealthResponse reports liveness and whether a result is available.
type HealthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// Handler implements SynergyEngineServer on top of a Service.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler constructs the gRPC handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// Analyze runs one analysis with the supplied overrides.
func (h *Handler) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if h.service == nil {
		return nil, status.Error(codes.FailedPrecondition, "service not configured")
	}
	var req models.AnalysisRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := ValidateAnalysisRequest(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	result, err := h.service.Analyze(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(result)
}

// ListSuggestions returns the latest ranked suggestions.
func (h *Handler) ListSuggestions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if h.service == nil {
		return nil, status.Error(codes.FailedPrecondition, "service not configured")
	}
	var req ListSuggestionsRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.MinConfidence < 0 || req.MinConfidence > 1 {
		return nil, status.Error(codes.InvalidArgument, "min_confidence must be within [0,1]")
	}
	return encode(ListSuggestionsResponse{
		Suggestions: h.service.ListSuggestions(req.MinConfidence, req.Kind, req.Limit),
	})
}

// SubmitFeedback records accept/reject feedback.
func (h *Handler) SubmitFeedback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if h.service == nil {
		return nil, status.Error(codes.FailedPrecondition, "service not configured")
	}
	var fb models.Feedback
	if err := FromStruct(in, &fb); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ack, err := h.service.SubmitFeedback(ctx, fb)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(ack)
}

// HealthCheck returns the current health state.
func (h *Handler) HealthCheck(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp := HealthResponse{Status: "SERVING"}
	if h.service != nil {
		resp.Ready = h.service.Ready()
	}
	return encode(resp)
}

// ValidateAnalysisRequest rejects requests the pipeline cannot run.
func ValidateAnalysisRequest(req models.AnalysisRequest) error {
	tr := req.TimeRange
	if tr.Start.IsZero() != tr.End.IsZero() {
		return fmt.Errorf("time_range.start and time_range.end must be set together")
	}
	if !tr.Start.IsZero() && !tr.End.After(tr.Start) {
		return fmt.Errorf("time_range.end must be after time_range.start")
	}
	if req.MinConfidence < 0 || req.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1]")
	}
	if req.MinSupport < 0 {
		return fmt.Errorf("min_support must not be negative")
	}
	if req.MinSupportRatio < 0 || req.MinSupportRatio > 1 {
		return fmt.Errorf("min_support_ratio must be within [0,1]")
	}
	return nil
}

// ToStruct converts a JSON-serialisable value into a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("convert payload: %w", err)
	}
	return out, nil
}

// FromStruct decodes a protobuf Struct into v. A nil struct leaves v untouched.
func FromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return nil
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("convert payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	out, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidFeedback):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, services.ErrUnknownSuggestion):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, services.ErrNoAnalysis):
		return status.Error(codes.FailedPrecondition, err.Error())
	case utils.IsUpstream(err):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func httpStatus(err error) int {
	switch status.Code(toStatus(err)) {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition, codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Canceled, codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
