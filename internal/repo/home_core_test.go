package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/miradorstack/mirador-synergy/internal/config"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

func coreConfig() config.CoreClientConfig {
	return config.CoreClientConfig{
		BaseURL:      "https://core.local/",
		Token:        "secret",
		EntitiesPath: "/api/v1/registry/entities",
		DevicesPath:  "/api/v1/registry/devices",
		EventsPath:   "/api/v1/history/events",
		Timeout:      time.Second,
	}
}

func TestListEntitiesCachesResults(t *testing.T) {
	hits := 0
	store := newRecordingCache()
	client := NewHomeCoreClient(coreConfig(), store, time.Minute)
	client.httpClient = fakeUpstream(upstreamFunc(func(req *http.Request) (*http.Response, error) {
		hits++
		if req.URL.Path != "/api/v1/registry/entities" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("missing bearer token, got %q", got)
		}
		return jsonResponse(t, map[string]any{
			"entities": []map[string]any{
				{"entity_id": "light.kitchen", "area_id": "kitchen"},
				{"entity_id": "broken"},
			},
		}), nil
	}))

	ctx := context.Background()
	entities, err := client.ListEntities(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 1 || entities[0].Domain != "light" || entities[0].AreaID != "kitchen" {
		t.Fatalf("unexpected entities: %+v", entities)
	}

	cached, err := client.ListEntities(ctx)
	if err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered network call; hits=%d", hits)
	}
	if len(cached) != 1 {
		t.Fatalf("unexpected cached payload: %+v", cached)
	}
	if keys := store.keys(); len(keys) != 1 || keys[0] != "core:entities" || store.ttls["core:entities"] != time.Minute {
		t.Fatalf("unexpected cache writes %v %v", keys, store.ttls)
	}
}

func TestListDevicesEvictsUndecodableCacheEntry(t *testing.T) {
	store := newRecordingCache()
	store.seed("core:devices", []byte("{not json"))
	hits := 0
	client := NewHomeCoreClient(coreConfig(), store, time.Minute)
	client.httpClient = fakeUpstream(upstreamFunc(func(req *http.Request) (*http.Response, error) {
		hits++
		return jsonResponse(t, map[string]any{
			"devices": []map[string]any{{"device_id": "dev-1", "name": "Kitchen hub"}},
		}), nil
	}))

	if _, err := client.ListDevices(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected a refetch after the bad entry, hits=%d", hits)
	}
	if len(store.evicted) != 1 || store.evicted[0] != "core:devices" {
		t.Fatalf("expected core:devices eviction, got %v", store.evicted)
	}
	if _, err := store.Get(context.Background(), "core:devices"); err != nil {
		t.Fatalf("expected the fresh payload to be cached: %v", err)
	}
}

func TestQueryEvents(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	client := NewHomeCoreClient(coreConfig(), nil, 0)
	client.httpClient = fakeUpstream(upstreamFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/api/v1/history/events" {
			t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		var body struct {
			EntityIDs []string `json:"entity_ids"`
			Start     string   `json:"start"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.EntityIDs) != 1 || body.Start != "2026-03-01T00:00:00Z" {
			t.Fatalf("unexpected body %+v", body)
		}
		return jsonResponse(t, map[string]any{
			"events": []map[string]any{
				{"entity_id": "light.kitchen", "timestamp": start.Add(7 * time.Hour), "state": "on"},
			},
		}), nil
	}))

	events, err := client.QueryEvents(context.Background(), []string{"light.kitchen"},
		models.TimeRange{Start: start, End: start.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Value != "on" || !events[0].Timestamp.Equal(start.Add(7*time.Hour)) {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestHomeCoreErrors(t *testing.T) {
	client := NewHomeCoreClient(coreConfig(), nil, 0)
	client.httpClient = fakeUpstream(upstreamFunc(func(req *http.Request) (*http.Response, error) {
		return rawResponse(http.StatusBadGateway, nil), nil
	}))
	if _, err := client.ListDevices(context.Background()); err == nil {
		t.Fatalf("expected error on 502")
	}

	unconfigured := NewHomeCoreClient(config.CoreClientConfig{}, nil, 0)
	if _, err := unconfigured.ListEntities(context.Background()); err == nil {
		t.Fatalf("expected error without base URL")
	}
}
