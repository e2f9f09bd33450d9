package translate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/loqalabs/loqa-translate/internal/config"
)

// Service translates through models resolved from a fixed pair table and
// held in a ModelCache.
type Service struct {
	models map[Pair]string
	cache  *ModelCache
	logger *slog.Logger
}

// New builds the translator for cfg.Mode.
func New(cfg config.TranslationConfig, logger *slog.Logger) (*Service, error) {
	var backend Backend
	switch strings.ToLower(cfg.Mode) {
	case "", "mock":
		backend = NewMockBackend()
	case "exec":
		b, err := NewExecBackend(cfg.Command)
		if err != nil {
			return nil, err
		}
		backend = b
	case "ollama":
		backend = NewOllamaBackend(cfg.Endpoint)
	default:
		return nil, fmt.Errorf("unknown translation mode %q", cfg.Mode)
	}
	return NewService(backend, cfg.Models, cfg.CacheSize, logger)
}

// NewService wires a backend to the "src-dst" → model name table.
func NewService(backend Backend, models map[string]string, cacheSize int, logger *slog.Logger) (*Service, error) {
	logger = logger.With(slog.String("component", "translate"))
	table := make(map[Pair]string, len(models))
	for key, name := range models {
		pair, err := ParsePair(key)
		if err != nil {
			return nil, err
		}
		table[pair] = name
	}
	cache, err := NewModelCache(backend, cacheSize, logger)
	if err != nil {
		return nil, fmt.Errorf("model cache: %w", err)
	}
	return &Service{models: table, cache: cache, logger: logger}, nil
}

func (s *Service) Translate(ctx context.Context, text, source, target string) (string, error) {
	pair := Pair{Source: strings.ToLower(source), Target: strings.ToLower(target)}
	name, ok := s.models[pair]
	if !ok {
		return "", &UnsupportedPairError{Pair: pair}
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	model, err := s.cache.Get(ctx, pair, name)
	if err != nil {
		return "", fmt.Errorf("load model %s: %w", name, err)
	}
	out, err := model.Translate(ctx, text)
	if err != nil {
		return "", fmt.Errorf("translate %s: %w", pair, err)
	}
	return strings.TrimSpace(out), nil
}

// Pairs returns the configured pairs sorted by their string form.
func (s *Service) Pairs() []Pair {
	pairs := make([]Pair, 0, len(s.models))
	for p := range s.models {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })
	return pairs
}

// Cache exposes the model cache for inspection.
func (s *Service) Cache() *ModelCache { return s.cache }
