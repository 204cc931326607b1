package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-synergy/internal/cache"
	"github.com/miradorstack/mirador-synergy/internal/config"
	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

// HomeCoreClient wraps the home core registry and recorder APIs.
type HomeCoreClient struct {
	baseURL      string
	token        string
	entitiesPath string
	devicesPath  string
	eventsPath   string
	httpClient   *http.Client
	cache        cache.Provider
	inventoryTTL time.Duration
}

// NewHomeCoreClient constructs a client targeting the configured home core instance.
// Registry responses are cached for inventoryTTL; history is never cached.
func NewHomeCoreClient(cfg config.CoreClientConfig, cacheProvider cache.Provider, inventoryTTL time.Duration) *HomeCoreClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if inventoryTTL < 0 {
		inventoryTTL = 0
	}
	return &HomeCoreClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		entitiesPath: cfg.EntitiesPath,
		devicesPath:  cfg.DevicesPath,
		eventsPath:   cfg.EventsPath,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:        cacheProvider,
		inventoryTTL: inventoryTTL,
	}
}

// ListEntities returns the entity registry.
func (c *HomeCoreClient) ListEntities(ctx context.Context) ([]models.Entity, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var response struct {
		Entities []models.Entity `json:"entities"`
	}
	if err := c.cachedGet(ctx, "core:entities", c.resolvePath(c.entitiesPath), &response); err != nil {
		return nil, fmt.Errorf("home core entities request failed: %w", err)
	}
	entities := make([]models.Entity, 0, len(response.Entities))
	for _, e := range response.Entities {
		if _, _, ok := models.SplitEntityID(e.EntityID); !ok {
			continue
		}
		entities = append(entities, e.Normalized())
	}
	return entities, nil
}

// ListDevices returns the device registry.
func (c *HomeCoreClient) ListDevices(ctx context.Context) ([]models.Device, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var response struct {
		Devices []models.Device `json:"devices"`
	}
	if err := c.cachedGet(ctx, "core:devices", c.resolvePath(c.devicesPath), &response); err != nil {
		return nil, fmt.Errorf("home core devices request failed: %w", err)
	}
	return response.Devices, nil
}

// QueryEvents returns recorded state changes of entityIDs in tr.
func (c *HomeCoreClient) QueryEvents(ctx context.Context, entityIDs []string, tr models.TimeRange) ([]models.StateChangeEvent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"entity_ids": entityIDs,
		"start":      tr.Start.UTC().Format(time.RFC3339),
		"end":        tr.End.UTC().Format(time.RFC3339),
	}

	var response struct {
		Events []struct {
			EntityID  string    `json:"entity_id"`
			Timestamp time.Time `json:"timestamp"`
			State     string    `json:"state"`
		} `json:"events"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.eventsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("home core history request failed: %w", err)
	}

	events := make([]models.StateChangeEvent, 0, len(response.Events))
	for _, ev := range response.Events {
		events = append(events, models.StateChangeEvent{
			EntityID:  ev.EntityID,
			Timestamp: ev.Timestamp,
			Value:     ev.State,
		})
	}
	return events, nil
}

func (c *HomeCoreClient) ready() error {
	if c == nil {
		return fmt.Errorf("home core client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("home core base URL not configured")
	}
	return nil
}

func (c *HomeCoreClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *HomeCoreClient) cachedGet(ctx context.Context, key, endpoint string, out any) error {
	if c.inventoryTTL > 0 {
		if data, err := c.cache.Get(ctx, key); err == nil {
			if err := json.Unmarshal(data, out); err == nil {
				return nil
			}
			_ = c.cache.Del(ctx, key)
		}
	}

	raw, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if c.inventoryTTL > 0 {
		_ = c.cache.Set(ctx, key, raw, c.inventoryTTL)
	}
	return nil
}

func (c *HomeCoreClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HomeCoreClient) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("empty endpoint")
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, utils.NewAppError("home_core "+method, "home core returned "+resp.Status, fmt.Errorf("%s", strings.TrimSpace(string(snippet))))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}
