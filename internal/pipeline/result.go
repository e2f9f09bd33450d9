package pipeline

import (
	"encoding/json"
	"time"
)

// Result is either a success record with every field populated or a failure
// record carrying only the error. There is no partial success.
type Result struct {
	SessionID      string
	SourceText     string
	TranslatedText string
	SourceLanguage string
	TargetLanguage string
	OutputAudio    string
	Error          string
	// Stage is the last state reached: StateDone on success, otherwise the
	// state that failed.
	Stage    State
	Duration time.Duration

	// Err is the originating error of a failed run.
	Err error
}

// OK reports whether the run succeeded.
func (r Result) OK() bool { return r.Error == "" }

type successRecord struct {
	SourceText     string `json:"source_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	OutputAudio    string `json:"output_audio"`
	SessionID      string `json:"session_id"`
	DurationMS     int64  `json:"duration_ms"`
}

type failureRecord struct {
	Error      string `json:"error"`
	Stage      State  `json:"stage"`
	SessionID  string `json:"session_id,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.OK() {
		return json.Marshal(failureRecord{
			Error:      r.Error,
			Stage:      r.Stage,
			SessionID:  r.SessionID,
			DurationMS: r.Duration.Milliseconds(),
		})
	}
	return json.Marshal(successRecord{
		SourceText:     r.SourceText,
		TranslatedText: r.TranslatedText,
		SourceLanguage: r.SourceLanguage,
		TargetLanguage: r.TargetLanguage,
		OutputAudio:    r.OutputAudio,
		SessionID:      r.SessionID,
		DurationMS:     r.Duration.Milliseconds(),
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		successRecord
		Error string `json:"error"`
		Stage State  `json:"stage"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{
		SessionID:      raw.SessionID,
		SourceText:     raw.SourceText,
		TranslatedText: raw.TranslatedText,
		SourceLanguage: raw.SourceLanguage,
		TargetLanguage: raw.TargetLanguage,
		OutputAudio:    raw.OutputAudio,
		Error:          raw.Error,
		Stage:          raw.Stage,
		Duration:       time.Duration(raw.DurationMS) * time.Millisecond,
	}
	if r.OK() && r.Stage == "" {
		r.Stage = StateDone
	}
	return nil
}
