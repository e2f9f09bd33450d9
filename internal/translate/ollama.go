package translate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ollamaBackend struct {
	endpoint string
	client   *http.Client
}

// NewOllamaBackend translates by prompting models served by an Ollama
// endpoint.
func NewOllamaBackend(endpoint string) Backend {
	return &ollamaBackend{endpoint: strings.TrimRight(endpoint, "/"), client: http.DefaultClient}
}

type ollamaShowRequest struct {
	Model string `json:"model"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaStreamResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Load checks that the endpoint knows the model.
func (b *ollamaBackend) Load(ctx context.Context, pair Pair, name string) (Model, error) {
	if err := b.post(ctx, "/api/show", ollamaShowRequest{Model: name}, nil); err != nil {
		return nil, err
	}
	return &ollamaModel{backend: b, pair: pair, name: name}, nil
}

func (b *ollamaBackend) post(ctx context.Context, path string, payload any, consume func(*http.Response) error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ollama %s returned status %s", path, resp.Status)
	}
	if consume == nil {
		return nil
	}
	return consume(resp)
}

type ollamaModel struct {
	backend *ollamaBackend
	pair    Pair
	name    string
}

func (m *ollamaModel) Translate(ctx context.Context, text string) (string, error) {
	payload := ollamaRequest{
		Model:  m.name,
		System: fmt.Sprintf("You translate text from language %q to language %q. Reply with the translation only.", m.pair.Source, m.pair.Target),
		Prompt: text,
		Stream: true,
	}
	var out strings.Builder
	err := m.backend.post(ctx, "/api/generate", payload, func(resp *http.Response) error {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var chunk ollamaStreamResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				return err
			}
			if chunk.Error != "" {
				return fmt.Errorf("ollama: %s", chunk.Error)
			}
			out.WriteString(chunk.Response)
			if chunk.Done {
				break
			}
		}
		return scanner.Err()
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
