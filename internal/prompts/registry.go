// Package prompts resolves the instructions, output schemas, and shared
// system and refinement prompts that stage executions are built from.
//
// A source is a named set of per-stage overrides. The "default" source and
// the empty source name resolve to the built-in text. A named source that
// does not override a stage falls back to the built-in text for that stage.
package prompts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/JaimeStill/refine/internal/stages"
)

// DefaultSource names the built-in prompt set.
const DefaultSource = "default"

// Source holds per-stage overrides for one named prompt set.
type Source struct {
	Instructions map[stages.Stage]string `toml:"instructions"`
	Schemas      map[stages.Stage]string `toml:"schemas"`
}

// Registry resolves prompt and schema sources. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	sources    map[string]Source
	system     string
	refinement string
	logger     *slog.Logger
}

// NewRegistry creates a registry holding only the built-in source.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sources:    make(map[string]Source),
		system:     systemPrompt,
		refinement: refinementPrompt,
		logger:     logger.With("system", "prompts"),
	}
}

// FromConfig creates a registry and loads every source and prompt override in cfg.
func FromConfig(cfg *Config, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)

	if cfg.System != "" {
		r.system = cfg.System
	}
	if cfg.Refinement != "" {
		r.refinement = cfg.Refinement
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.Sources)) {
		if err := r.Register(name, cfg.Sources[name]); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds or replaces a named source. Schemas must be valid JSON.
func (r *Registry) Register(name string, src Source) error {
	if name == "" || name == DefaultSource {
		return fmt.Errorf("source name %q is reserved", name)
	}

	for stage, schema := range src.Schemas {
		if !stage.Valid() {
			return fmt.Errorf("source %s: %w", name, stages.ErrInvalidStage)
		}
		if !json.Valid([]byte(schema)) {
			return fmt.Errorf("source %s stage %s: %w", name, stage, ErrInvalidSchema)
		}
	}
	for stage := range src.Instructions {
		if !stage.Valid() {
			return fmt.Errorf("source %s: %w", name, stages.ErrInvalidStage)
		}
	}

	r.mu.Lock()
	r.sources[name] = Source{
		Instructions: maps.Clone(src.Instructions),
		Schemas:      maps.Clone(src.Schemas),
	}
	r.mu.Unlock()

	r.logger.Debug("prompt source registered", "source", name)
	return nil
}

// Sources returns the registered source names, including the built-in one.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Sorted(maps.Keys(r.sources))
	return append([]string{DefaultSource}, names...)
}

// LookupPrompt returns the instructions source provides for stage.
func (r *Registry) LookupPrompt(source string, stage stages.Stage) (string, error) {
	return r.lookup(source, stage, func(s Source) map[stages.Stage]string {
		return s.Instructions
	}, Instructions)
}

// LookupSchema returns the JSON schema source provides for stage.
func (r *Registry) LookupSchema(source string, stage stages.Stage) (string, error) {
	return r.lookup(source, stage, func(s Source) map[stages.Stage]string {
		return s.Schemas
	}, Schema)
}

// SystemPrompt returns the system prompt shared by every stage.
func (r *Registry) SystemPrompt() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.system
}

// RefinementPrompt returns the preamble added to refinement transforms.
func (r *Registry) RefinementPrompt() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refinement
}

func (r *Registry) lookup(
	source string,
	stage stages.Stage,
	pick func(Source) map[stages.Stage]string,
	fallback func(stages.Stage) (string, error),
) (string, error) {
	if !stage.Valid() {
		return "", stages.ErrInvalidStage
	}

	if source == "" || source == DefaultSource {
		return fallback(stage)
	}

	r.mu.RLock()
	src, ok := r.sources[source]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	if text, ok := pick(src)[stage]; ok {
		return text, nil
	}
	return fallback(stage)
}
