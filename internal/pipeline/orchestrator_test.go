package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-translate/internal/audio"
	"github.com/loqalabs/loqa-translate/internal/capture"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/eventstore"
	"github.com/loqalabs/loqa-translate/internal/preprocess"
	"github.com/loqalabs/loqa-translate/internal/stt"
	"github.com/loqalabs/loqa-translate/internal/translate"
	"github.com/loqalabs/loqa-translate/internal/tts"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type toneDevice struct{ amplitude float64 }

func (d toneDevice) Record(seconds float64, sampleRate, channels int) ([]float32, error) {
	frames := int(seconds * float64(sampleRate))
	samples := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		v := float32(d.amplitude * math.Sin(2*math.Pi*330*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}
	return samples, nil
}

type fakeRecognizer struct {
	text     string
	calls    atomic.Int32
	inflight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	seen     audio.Handle
}

func (f *fakeRecognizer) Recognize(_ context.Context, in audio.Handle, language string) (stt.TranscriptResult, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	f.calls.Add(1)
	f.seen = in
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if language == "xx" {
		return stt.TranscriptResult{}, &stt.UnsupportedLanguageError{Language: language}
	}
	return stt.TranscriptResult{Text: f.text, Language: language}, nil
}

func (f *fakeRecognizer) Languages() []string { return []string{"en"} }

type countingSynth struct {
	inner tts.Synthesizer
	calls atomic.Int32
}

func (c *countingSynth) Synthesize(ctx context.Context, text, language, path string) (audio.Handle, error) {
	c.calls.Add(1)
	return c.inner.Synthesize(ctx, text, language, path)
}

type harness struct {
	orch        *Orchestrator
	recognizer  *fakeRecognizer
	synth       *countingSynth
	cfg         config.Config
	mu          sync.Mutex
	transitions []Transition
}

func newHarness(t *testing.T, device capture.Device, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Session.TempRoot = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	translator, err := translate.New(cfg.Translation, testLogger())
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	converter, err := tts.New(cfg.TTS, testLogger())
	if err != nil {
		t.Fatalf("tts: %v", err)
	}
	h := &harness{
		recognizer: &fakeRecognizer{text: "hello world"},
		synth:      &countingSynth{inner: converter},
		cfg:        cfg,
	}
	h.orch = New(cfg, Dependencies{
		Device:      device,
		Recognizer:  h.recognizer,
		Translator:  translator,
		Synthesizer: h.synth,
		Observers: []Observer{ObserverFunc(func(_ context.Context, tr Transition) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.transitions = append(h.transitions, tr)
		})},
	}, testLogger())
	return h
}

func (h *harness) states() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []State
	for _, tr := range h.transitions {
		out = append(out, tr.To)
	}
	return out
}

func writeTone(t *testing.T, seconds float64, rate int, amplitude float64) string {
	t.Helper()
	samples, _ := toneDevice{amplitude: amplitude}.Record(seconds, rate, 1)
	path := filepath.Join(t.TempDir(), "input.wav")
	if _, err := audio.WriteFile(path, audio.Buffer{Samples: samples, SampleRate: rate, Channels: 1}); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestRunFromFileSucceeds(t *testing.T) {
	h := newHarness(t, nil, nil)
	input := writeTone(t, 1, 44100, 0.4)

	res := h.orch.Run(context.Background(), Request{AudioFile: input})
	if !res.OK() {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.SourceText != "hello world" || res.TranslatedText != "[es] hello world" {
		t.Fatalf("unexpected texts %+v", res)
	}
	if res.SourceLanguage != "en" || res.TargetLanguage != "es" || res.Stage != StateDone {
		t.Fatalf("unexpected record %+v", res)
	}
	if _, err := os.Stat(res.OutputAudio); err != nil {
		t.Fatalf("expected output audio retained: %v", err)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("input must never be removed: %v", err)
	}
	if h.recognizer.seen.SampleRate != 16000 || !h.recognizer.seen.Owned {
		t.Fatalf("recognizer should receive the processed session file, got %+v", h.recognizer.seen)
	}

	want := []State{StateLoading, StatePreprocessing, StateRecognizing, StateTranslating, StateSynthesizing, StateDone}
	if got := h.states(); !reflect.DeepEqual(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	if h.transitions[0].From != StateIdle {
		t.Fatalf("first transition should leave idle, got %s", h.transitions[0].From)
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"source_text", "translated_text", "source_language", "target_language", "output_audio"} {
		if _, ok := record[key]; !ok {
			t.Fatalf("missing key %q in %s", key, data)
		}
	}
	if _, ok := record["error"]; ok {
		t.Fatalf("success record must not carry an error: %s", data)
	}
}

func TestRunFromDevice(t *testing.T) {
	h := newHarness(t, toneDevice{amplitude: 0.3}, nil)
	res := h.orch.Run(context.Background(), Request{RecordSeconds: 2})
	if !res.OK() {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if got := h.states(); got[0] != StateCapturing {
		t.Fatalf("expected capture first, got %v", got)
	}
	dir := filepath.Dir(res.OutputAudio)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read session dir: %v", err)
	}
	var prefixes []string
	for _, e := range entries {
		prefixes = append(prefixes, strings.SplitN(e.Name(), "_", 2)[0])
	}
	sort.Strings(prefixes)
	if !reflect.DeepEqual(prefixes, []string{"processed", "recording", "tts"}) {
		t.Fatalf("unexpected session files %v", prefixes)
	}
}

func TestSilentRecordingFailsAtPreprocessing(t *testing.T) {
	h := newHarness(t, toneDevice{amplitude: 0}, nil)
	res := h.orch.Run(context.Background(), Request{RecordSeconds: 3})
	if res.OK() {
		t.Fatal("expected failure for silent input")
	}
	var empty *preprocess.EmptySignalError
	if !errors.As(res.Err, &empty) {
		t.Fatalf("expected EmptySignalError, got %v", res.Err)
	}
	if res.Stage != StatePreprocessing {
		t.Fatalf("expected failure at preprocessing, got %s", res.Stage)
	}
	if h.recognizer.calls.Load() != 0 || h.synth.calls.Load() != 0 {
		t.Fatal("no stage may run after a failure")
	}
	if res.SourceText != "" || res.OutputAudio != "" {
		t.Fatalf("failure record must not carry partial results: %+v", res)
	}
	states := h.states()
	if states[len(states)-1] != StateFailed {
		t.Fatalf("expected terminal failed state, got %v", states)
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := record["source_text"]; ok {
		t.Fatalf("failure record leaked success fields: %s", data)
	}
	if record["error"] != res.Error {
		t.Fatalf("unexpected error field in %s", data)
	}
}

func TestMissingFileFailsAtLoading(t *testing.T) {
	h := newHarness(t, nil, nil)
	res := h.orch.Run(context.Background(), Request{AudioFile: "/nonexistent.wav"})
	var nf *capture.NotFoundError
	if !errors.As(res.Err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", res.Err)
	}
	if res.Stage != StateLoading {
		t.Fatalf("expected failure at loading, got %s", res.Stage)
	}
}

func TestNoDeviceFailsAtCapturing(t *testing.T) {
	h := newHarness(t, nil, nil)
	res := h.orch.Run(context.Background(), Request{RecordSeconds: 1})
	var devErr *capture.DeviceError
	if !errors.As(res.Err, &devErr) || res.Stage != StateCapturing {
		t.Fatalf("expected DeviceError at capturing, got %v at %s", res.Err, res.Stage)
	}
}

func TestUnsupportedPairFailsAtTranslating(t *testing.T) {
	h := newHarness(t, nil, nil)
	input := writeTone(t, 1, 16000, 0.5)
	res := h.orch.Run(context.Background(), Request{AudioFile: input, TargetLanguage: "ru"})
	var unsupported *translate.UnsupportedPairError
	if !errors.As(res.Err, &unsupported) {
		t.Fatalf("expected UnsupportedPairError, got %v", res.Err)
	}
	if res.Stage != StateTranslating || h.synth.calls.Load() != 0 {
		t.Fatalf("expected failure at translating without synthesis, got %s", res.Stage)
	}
}

func TestUnsupportedLanguageFailsAtRecognizing(t *testing.T) {
	h := newHarness(t, nil, nil)
	input := writeTone(t, 1, 16000, 0.5)
	res := h.orch.Run(context.Background(), Request{AudioFile: input, SourceLanguage: "xx"})
	var unsupported *stt.UnsupportedLanguageError
	if !errors.As(res.Err, &unsupported) || res.Stage != StateRecognizing {
		t.Fatalf("expected UnsupportedLanguageError at recognizing, got %v at %s", res.Err, res.Stage)
	}
}

func TestAutoCleanupRemovesSessionFiles(t *testing.T) {
	var outputExisted bool
	h := newHarness(t, toneDevice{amplitude: 0.5}, func(cfg *config.Config) {
		cfg.Session.AutoCleanup = true
	})
	h.orch.Observe(ObserverFunc(func(_ context.Context, tr Transition) {
		if tr.To == StateDone {
			_, err := os.Stat(tr.Result.OutputAudio)
			outputExisted = err == nil
		}
	}))
	res := h.orch.Run(context.Background(), Request{RecordSeconds: 1})
	if !res.OK() {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if !outputExisted {
		t.Fatal("output should exist while observers run")
	}
	if _, err := os.Stat(filepath.Dir(res.OutputAudio)); !os.IsNotExist(err) {
		t.Fatalf("expected session dir removed, stat err=%v", err)
	}
	entries, err := os.ReadDir(h.cfg.Session.TempRoot)
	if err != nil {
		t.Fatalf("read temp root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty temp root, found %d entries", len(entries))
	}
}

func TestRunsAreSerialized(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.recognizer.delay = 20 * time.Millisecond
	input := writeTone(t, 0.5, 16000, 0.5)

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.orch.Run(context.Background(), Request{AudioFile: input})
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, res := range results {
		if !res.OK() {
			t.Fatalf("unexpected failure: %s", res.Error)
		}
		if seen[res.SessionID] {
			t.Fatalf("duplicate session id %s", res.SessionID)
		}
		seen[res.SessionID] = true
	}
	if h.recognizer.maxSeen.Load() != 1 {
		t.Fatalf("expected one run in flight, saw %d", h.recognizer.maxSeen.Load())
	}
}

func TestHistoryObserverRecordsRuns(t *testing.T) {
	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "history.db"),
		RetentionMode: "persistent",
	}, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := newHarness(t, toneDevice{amplitude: 0}, nil)
	h.orch.Observe(HistoryObserver(store, testLogger()))
	h.orch.Observe(LogObserver(testLogger()))

	failed := h.orch.Run(context.Background(), Request{RecordSeconds: 1})
	input := writeTone(t, 1, 16000, 0.5)
	ok := h.orch.Run(context.Background(), Request{AudioFile: input})

	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	byID := map[string]eventstore.Run{}
	for _, r := range runs {
		byID[r.SessionID] = r
	}
	if r := byID[failed.SessionID]; r.Status != eventstore.StatusFailed || r.Stage != string(StatePreprocessing) || r.Input != "microphone" {
		t.Fatalf("unexpected failed run %+v", r)
	}
	if r := byID[ok.SessionID]; r.Status != eventstore.StatusDone || r.TranslatedText != ok.TranslatedText || r.Input != input {
		t.Fatalf("unexpected successful run %+v", r)
	}

	events, err := store.ListSessionEvents(context.Background(), ok.SessionID, 20)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 6 || events[len(events)-1].To != string(StateDone) {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestResultJSONRoundTrip(t *testing.T) {
	in := Result{SessionID: "s", Error: "boom", Stage: StateTranslating, Duration: 1500 * time.Millisecond}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Result
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Error != "boom" || out.Stage != StateTranslating || out.Duration != 1500*time.Millisecond || out.OK() {
		t.Fatalf("unexpected round trip %+v", out)
	}
}
