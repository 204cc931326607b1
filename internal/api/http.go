package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/services"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is required")

// NewRouter exposes health, metrics and the suggestion/feedback endpoints over HTTP.
// metricsHandler may be nil.
func NewRouter(logger *slog.Logger, service Service, metricsHandler http.Handler) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	h := &httpHandler{logger: logger, service: service}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/suggestions", h.listSuggestions).Methods(http.MethodGet)
	v1.HandleFunc("/feedback", h.submitFeedback).Methods(http.MethodPost)
	v1.HandleFunc("/analyze", h.analyze).Methods(http.MethodPost)
	v1.HandleFunc("/patterns", h.patterns).Methods(http.MethodGet)
	return r
}

// NewHTTPServer wraps router with panic recovery and, when accessLog is non-nil,
// combined-format access logging.
func NewHTTPServer(addr string, router http.Handler, logger *slog.Logger, accessLog io.Writer) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	handler := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(false),
	)(router)
	if accessLog != nil {
		handler = handlers.CombinedLoggingHandler(accessLog, handler)
	}
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("http handler panic", slog.String("panic", fmt.Sprint(v...)))
}

type httpHandler struct {
	logger  *slog.Logger
	service Service
}

func (h *httpHandler) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.service != nil {
		resp.Ready = h.service.Ready()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *httpHandler) listSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req ListSuggestionsRequest
	if v := q.Get("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			writeError(w, http.StatusBadRequest, "min_confidence must be a number within [0,1]")
			return
		}
		req.MinConfidence = f
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		req.Limit = n
	}
	req.Kind = q.Get("kind")

	writeJSON(w, http.StatusOK, ListSuggestionsResponse{
		Suggestions: h.service.ListSuggestions(req.MinConfidence, req.Kind, req.Limit),
	})
}

func (h *httpHandler) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var fb models.Feedback
	if err := decodeBody(r, &fb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ack, err := h.service.SubmitFeedback(r.Context(), fb)
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (h *httpHandler) analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ValidateAnalysisRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.service.Analyze(r.Context(), req)
	if err != nil {
		h.logger.Error("http analyze failed", slog.Any("error", err))
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *httpHandler) patterns(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Patterns(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoAnalysis) {
			writeJSON(w, http.StatusOK, map[string][]models.Pattern{"patterns": {}})
			return
		}
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Pattern{"patterns": list})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
