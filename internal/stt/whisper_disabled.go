//go:build !whisper

package stt

import (
	"errors"
	"log/slog"

	"github.com/loqalabs/loqa-translate/internal/config"
)

// NewWhisperRecognizer reports that the binary was built without the
// whisper tag.
func NewWhisperRecognizer(config.STTConfig, *slog.Logger) (Recognizer, error) {
	return nil, errors.New("stt mode whisper requires building with -tags whisper")
}
