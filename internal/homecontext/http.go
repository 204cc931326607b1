package homecontext

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// HTTPProvider polls a JSON endpoint and flattens its top-level fields into readings.
type HTTPProvider struct {
	kind    string
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPProvider constructs a provider for kind. perMinute bounds outgoing requests;
// <= 0 disables pacing.
func NewHTTPProvider(logger *slog.Logger, kind, url string, timeout time.Duration, perMinute int) *HTTPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &HTTPProvider{
		kind:    kind,
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// Kind implements Provider.
func (p *HTTPProvider) Kind() string {
	return p.kind
}

// Fetch implements Provider.
func (p *HTTPProvider) Fetch(ctx context.Context) (map[string]string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit: %w", p.kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", p.kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s provider returned %d: %s", p.kind, resp.StatusCode, string(body))
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", p.kind, err)
	}
	readings := flatten(payload)
	if len(readings) == 0 {
		return nil, fmt.Errorf("%s provider returned no readings", p.kind)
	}
	p.logger.Debug("context fetched", slog.String("kind", p.kind), slog.Int("fields", len(readings)))
	return readings, nil
}

// flatten keeps scalar top-level fields; nested objects and arrays are dropped.
func flatten(payload map[string]any) map[string]string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			out[k] = v
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(v)
		}
	}
	return out
}
