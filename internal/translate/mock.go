package translate

import (
	"context"
	"fmt"
)

type mockBackend struct{}

func NewMockBackend() Backend { return mockBackend{} }

func (mockBackend) Load(_ context.Context, pair Pair, _ string) (Model, error) {
	return mockModel{pair: pair}, nil
}

type mockModel struct {
	pair Pair
}

func (m mockModel) Translate(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", m.pair.Target, text), nil
}
