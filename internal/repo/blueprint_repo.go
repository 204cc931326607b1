package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-synergy/internal/blueprints"
	"github.com/miradorstack/mirador-synergy/internal/cache"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

const blueprintSearchLimit = 25

// BlueprintRepo searches a remote blueprint catalogue over HTTP.
type BlueprintRepo struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      cache.Provider
	ttl        time.Duration
}

// NewBlueprintRepo constructs a catalogue client.
func NewBlueprintRepo(endpoint, apiKey string, timeout time.Duration, cacheProvider cache.Provider, ttl time.Duration) *BlueprintRepo {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if ttl < 0 {
		ttl = 0
	}
	return &BlueprintRepo{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		ttl:        ttl,
	}
}

// Search implements blueprints.Corpus.
func (r *BlueprintRepo) Search(ctx context.Context, deviceTypes []string, useCase string, minQuality float64) ([]models.BlueprintTemplate, error) {
	if r == nil || r.endpoint == "" {
		return nil, blueprints.ErrCorpusUnavailable
	}

	sorted := append([]string(nil), deviceTypes...)
	sort.Strings(sorted)
	cacheKey := ""
	if r.ttl > 0 {
		cacheKey = cacheBlueprintSearchKey(sorted, useCase, minQuality)
		if data, err := r.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.BlueprintTemplate
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"device_types": sorted,
		"use_case":     useCase,
		"min_quality":  minQuality,
		"limit":        blueprintSearchLimit,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/blueprints/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", blueprints.ErrCorpusUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: catalogue returned %d: %s", blueprints.ErrCorpusUnavailable, resp.StatusCode, string(body))
	}

	var response struct {
		Blueprints []models.BlueprintTemplate `json:"blueprints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode blueprints: %w", err)
	}

	results := make([]models.BlueprintTemplate, 0, len(response.Blueprints))
	for _, t := range response.Blueprints {
		if t.ID == "" || t.Quality < minQuality {
			continue
		}
		if len(t.DeviceTypes) == 0 {
			t.DeviceTypes = blueprints.InferDeviceTypes(t.Name + " " + t.Description)
		}
		results = append(results, t)
	}

	if cacheKey != "" && len(results) > 0 {
		if payload, err := json.Marshal(results); err == nil {
			_ = r.cache.Set(ctx, cacheKey, payload, r.ttl)
		}
	}
	return results, nil
}

func cacheBlueprintSearchKey(deviceTypes []string, useCase string, minQuality float64) string {
	return fmt.Sprintf("blueprints:search:%s:%s:%s", useCase, strconv.FormatFloat(minQuality, 'f', 2, 64), strings.Join(deviceTypes, "|"))
}
