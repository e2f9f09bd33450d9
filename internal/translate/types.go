package translate

import (
	"context"
	"fmt"
	"strings"
)

// Pair is a directed language pair such as en→es.
type Pair struct {
	Source string
	Target string
}

func (p Pair) String() string { return p.Source + "-" + p.Target }

// ParsePair accepts the "src-dst" form used in configuration keys.
func ParsePair(s string) (Pair, error) {
	src, dst, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "-")
	if !ok || src == "" || dst == "" {
		return Pair{}, fmt.Errorf("invalid language pair %q", s)
	}
	return Pair{Source: src, Target: dst}, nil
}

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
	Pairs() []Pair
}

// UnsupportedPairError reports a language pair with no configured model.
type UnsupportedPairError struct {
	Pair Pair
}

func (e *UnsupportedPairError) Error() string {
	return fmt.Sprintf("no translation model for %s to %s", e.Pair.Source, e.Pair.Target)
}

// Model is a loaded translation model bound to one pair.
type Model interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Backend loads models by name. Loaded models that implement io.Closer are
// closed when evicted from the cache.
type Backend interface {
	Load(ctx context.Context, pair Pair, name string) (Model, error)
}
