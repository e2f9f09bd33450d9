package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-translate/internal/audio"
)

type mockRecognizer struct {
	languages languageSet
}

func NewMockRecognizer(languages []string) Recognizer {
	return &mockRecognizer{languages: normalizeLanguages(languages)}
}

func (m *mockRecognizer) Recognize(_ context.Context, in audio.Handle, language string) (TranscriptResult, error) {
	if err := m.languages.check(language); err != nil {
		return TranscriptResult{}, err
	}
	return TranscriptResult{
		Text:     fmt.Sprintf("[%s transcript duration=%s]", language, in.Duration),
		Language: language,
	}, nil
}

func (m *mockRecognizer) Languages() []string {
	return append([]string(nil), m.languages...)
}
