package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-translate/internal/audio"
	"github.com/loqalabs/loqa-translate/internal/capture"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/ledger"
	"github.com/loqalabs/loqa-translate/internal/preprocess"
	"github.com/loqalabs/loqa-translate/internal/stt"
	"github.com/loqalabs/loqa-translate/internal/translate"
	"github.com/loqalabs/loqa-translate/internal/tts"
)

// Request selects the input of one run. When AudioFile is empty the input
// device records for RecordSeconds. Empty languages fall back to the
// configured defaults.
type Request struct {
	AudioFile      string
	RecordSeconds  float64
	SourceLanguage string
	TargetLanguage string
}

// Dependencies are the collaborators shared by every run.
type Dependencies struct {
	Device      capture.Device
	Recognizer  stt.Recognizer
	Translator  translate.Translator
	Synthesizer tts.Synthesizer
	Observers   []Observer
}

// Orchestrator runs requests through capture, preprocessing, recognition,
// translation and synthesis. One run is in flight at a time; concurrent
// callers of Run wait for the previous run to finish.
type Orchestrator struct {
	cfg    config.Config
	deps   Dependencies
	logger *slog.Logger

	mu sync.Mutex
}

func New(cfg config.Config, deps Dependencies, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "pipeline")),
	}
}

// Observe registers an additional observer. It must not be called while a
// run is in flight.
func (o *Orchestrator) Observe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deps.Observers = append(o.deps.Observers, obs)
}

// run carries the per-request state machine.
type run struct {
	o         *Orchestrator
	ctx       context.Context
	sessionID string
	req       Request
	state     State
	entered   time.Time
	started   time.Time
	logger    *slog.Logger
}

func (r *run) transition(to State, err error, result *Result) {
	now := time.Now()
	t := Transition{
		SessionID: r.sessionID,
		Request:   r.req,
		From:      r.state,
		To:        to,
		At:        now,
		Elapsed:   now.Sub(r.entered),
		Err:       err,
		Result:    result,
	}
	r.state = to
	r.entered = now
	for _, obs := range r.o.deps.Observers {
		obs.Observe(r.ctx, t)
	}
}

func (r *run) fail(err error, res Result) Result {
	failed := r.state
	res.SourceText = ""
	res.TranslatedText = ""
	res.OutputAudio = ""
	res.Error = err.Error()
	res.Err = err
	res.Stage = failed
	res.Duration = time.Since(r.started)
	r.logger.Error("translation failed", slog.String("stage", string(failed)), slogError(err))
	r.transition(StateFailed, err, &res)
	return res
}

// stageContext bounds external collaborator calls by the configured stage
// timeout.
func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.Pipeline.StageTimeoutMS <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(o.cfg.Pipeline.StageTimeoutMS)*time.Millisecond)
}

// Run executes one request to completion and returns its record. Stage
// errors never escape as Go errors; they become a failure record.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	source := strings.ToLower(firstNonEmpty(req.SourceLanguage, o.cfg.Pipeline.SourceLanguage))
	target := strings.ToLower(firstNonEmpty(req.TargetLanguage, o.cfg.Pipeline.TargetLanguage))
	sessionID := uuid.NewString()
	now := time.Now()
	r := &run{
		o:         o,
		ctx:       ctx,
		sessionID: sessionID,
		req:       Request{AudioFile: req.AudioFile, RecordSeconds: req.RecordSeconds, SourceLanguage: source, TargetLanguage: target},
		state:     StateIdle,
		entered:   now,
		started:   now,
		logger:    o.logger.With(slog.String("session_id", sessionID)),
	}
	res := Result{SessionID: sessionID, SourceLanguage: source, TargetLanguage: target}

	l, err := ledger.New(o.cfg.Session.TempRoot, o.cfg.Session.AutoCleanup, r.logger)
	if err != nil {
		return r.fail(fmt.Errorf("create session: %w", err), res)
	}
	defer l.Close()

	// Acquire input.
	var raw audio.Handle
	src := capture.NewSource(o.deps.Device, l, r.logger)
	if req.AudioFile == "" {
		seconds := req.RecordSeconds
		if seconds <= 0 {
			seconds = o.cfg.Audio.RecordSeconds
		}
		r.transition(StateCapturing, nil, nil)
		raw, err = src.Capture(ctx, seconds, o.cfg.Audio.SampleRate, o.cfg.Audio.Channels)
	} else {
		r.transition(StateLoading, nil, nil)
		raw, err = src.UseExisting(req.AudioFile)
	}
	if err != nil {
		return r.fail(err, res)
	}

	r.transition(StatePreprocessing, nil, nil)
	pre := preprocess.New(l, o.cfg.Audio, r.logger)
	processed, err := pre.Process(ctx, raw, preprocess.DefaultOptions(o.cfg.Audio))
	if err != nil {
		return r.fail(err, res)
	}

	r.transition(StateRecognizing, nil, nil)
	if o.deps.Recognizer == nil {
		return r.fail(errors.New("no recognizer configured"), res)
	}
	stageCtx, cancel := o.stageContext(ctx)
	transcript, err := o.deps.Recognizer.Recognize(stageCtx, processed, source)
	cancel()
	if err != nil {
		return r.fail(err, res)
	}
	res.SourceText = transcript.Text
	r.logger.Info("recognized text", slog.String("text", transcript.Text))

	r.transition(StateTranslating, nil, nil)
	if o.deps.Translator == nil {
		return r.fail(errors.New("no translator configured"), res)
	}
	stageCtx, cancel = o.stageContext(ctx)
	translated, err := o.deps.Translator.Translate(stageCtx, transcript.Text, source, target)
	cancel()
	if err != nil {
		return r.fail(err, res)
	}
	res.TranslatedText = translated
	r.logger.Info("translated text", slog.String("text", translated))

	r.transition(StateSynthesizing, nil, nil)
	if o.deps.Synthesizer == nil {
		return r.fail(errors.New("no synthesizer configured"), res)
	}
	// The output path is tracked up front so a partial file is still cleaned.
	speech := audio.Handle{Path: l.NewPath("tts", ".wav")}
	l.Track(&speech)
	stageCtx, cancel = o.stageContext(ctx)
	speech, err = o.deps.Synthesizer.Synthesize(stageCtx, translated, target, speech.Path)
	cancel()
	if err != nil {
		return r.fail(err, res)
	}
	res.OutputAudio = speech.Path

	res.Stage = StateDone
	res.Duration = time.Since(r.started)
	r.transition(StateDone, nil, &res)
	return res
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
