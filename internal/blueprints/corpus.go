package blueprints

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// ErrCorpusUnavailable is returned when a catalogue cannot be read.
var ErrCorpusUnavailable = errors.New("blueprint corpus unavailable")

type corpusFile struct {
	Blueprints []models.BlueprintTemplate `yaml:"blueprints"`
}

// FileCorpus serves blueprints from a YAML catalogue loaded at start-up.
type FileCorpus struct {
	templates []models.BlueprintTemplate
}

// LoadFileCorpus reads path. A missing file yields an empty corpus.
func LoadFileCorpus(path string) (*FileCorpus, error) {
	if path == "" {
		return &FileCorpus{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &FileCorpus{}, nil
		}
		return nil, fmt.Errorf("read blueprints: %w", err)
	}
	var file corpusFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse blueprints: %w", err)
	}
	return NewFileCorpus(file.Blueprints), nil
}

// NewFileCorpus wraps an in-memory template list.
func NewFileCorpus(templates []models.BlueprintTemplate) *FileCorpus {
	out := make([]models.BlueprintTemplate, 0, len(templates))
	for _, t := range templates {
		if t.ID == "" {
			continue
		}
		if len(t.DeviceTypes) == 0 {
			t.DeviceTypes = InferDeviceTypes(t.Name + " " + t.Description)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return &FileCorpus{templates: out}
}

// Len reports how many templates are loaded.
func (c *FileCorpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.templates)
}

// Search returns templates of sufficient quality sharing a device type or the use case.
func (c *FileCorpus) Search(ctx context.Context, deviceTypes []string, useCase string, minQuality float64) ([]models.BlueprintTemplate, error) {
	if c == nil {
		return nil, ErrCorpusUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]models.BlueprintTemplate, 0)
	for _, t := range c.templates {
		if t.Quality < minQuality {
			continue
		}
		if strings.EqualFold(t.UseCase, useCase) || sharesType(t.DeviceTypes, deviceTypes) {
			out = append(out, t)
		}
	}
	return out, nil
}

func sharesType(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if typesMatch(x, y) {
				return true
			}
		}
	}
	return false
}
