package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execBackend struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
	Model  string `json:"model"`
}

type execResponse struct {
	Translation string `json:"translation"`
}

// NewExecBackend runs an external command per translation. The request is
// written to stdin as JSON and the command answers {"translation": "..."}.
func NewExecBackend(command string) (Backend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse translation command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("translation command empty")
	}
	return &execBackend{cmd: args}, nil
}

func (b *execBackend) Load(_ context.Context, pair Pair, name string) (Model, error) {
	return &execModel{backend: b, pair: pair, name: name}, nil
}

type execModel struct {
	backend *execBackend
	pair    Pair
	name    string
}

func (m *execModel) Translate(ctx context.Context, text string) (string, error) {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()

	input, err := json.Marshal(execRequest{Text: text, Source: m.pair.Source, Target: m.pair.Target, Model: m.name})
	if err != nil {
		return "", err
	}

	base := m.backend.cmd[0]
	args := append([]string{}, m.backend.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("translation exec command failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode translation exec response: %w", err)
	}
	return resp.Translation, nil
}
