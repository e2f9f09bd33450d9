package protocol

import "time"

// TranslateRequest asks a serving runtime to run one pipeline session. An
// empty AudioFile records from the runtime's input device.
type TranslateRequest struct {
	RequestID     string  `json:"request_id,omitempty"`
	AudioFile     string  `json:"audio_file,omitempty"`
	RecordSeconds float64 `json:"record_seconds,omitempty"`
	Source        string  `json:"source,omitempty"`
	Target        string  `json:"target,omitempty"`
}

// TranslateResult is published once per request. Exactly one of the success
// fields or Error is populated.
type TranslateResult struct {
	RequestID      string    `json:"request_id,omitempty"`
	SessionID      string    `json:"session_id"`
	SourceText     string    `json:"source_text,omitempty"`
	TranslatedText string    `json:"translated_text,omitempty"`
	SourceLanguage string    `json:"source_language,omitempty"`
	TargetLanguage string    `json:"target_language,omitempty"`
	OutputAudio    string    `json:"output_audio,omitempty"`
	Error          string    `json:"error,omitempty"`
	Stage          string    `json:"stage"`
	DurationMS     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// StageEvent mirrors one pipeline state transition.
type StageEvent struct {
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranslateRequest = "translate.request"
	SubjectTranslateResult  = "translate.result"
	// Stage events are published on translate.stage.<session_id>.
	SubjectStagePrefix = "translate.stage"

	// StreamResults is the JetStream stream retaining published results.
	StreamResults = "TRANSLATE_RESULTS"
)
