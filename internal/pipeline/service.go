package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-translate/internal/bus"
	"github.com/loqalabs/loqa-translate/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service serves translate requests arriving on the bus. Results are sent as
// a reply when the request carries a reply subject and are always published
// on protocol.SubjectTranslateResult.
type Service struct {
	bus    *bus.Client
	orch   *Orchestrator
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu orders wg.Add in handleRequest against the closed flag set by Close.
	mu     sync.Mutex
	closed bool
}

func NewService(parent context.Context, busClient *bus.Client, orch *Orchestrator, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:    busClient,
		orch:   orch,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "translate-service")),
	}
}

func (s *Service) Start() error {
	if err := s.bus.EnsureStream(protocol.StreamResults, protocol.SubjectTranslateResult); err != nil {
		s.logger.Warn("results will not be retained", slogError(err))
	}
	s.orch.Observe(ObserverFunc(s.publishStage))

	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTranslateRequest, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectTranslateRequest, err)
	}
	s.sub = sub
	s.logger.Info("listening for translate requests", slog.String("subject", protocol.SubjectTranslateRequest))
	return nil
}

// Close stops accepting requests, cancels runs in flight and waits for them
// to reply. Requests delivered after Close are dropped.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.logger.Debug("failed to unsubscribe", slogError(err))
		}
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil && s.bus.Healthy() }

func (s *Service) handleRequest(msg *nats.Msg) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("dropping translate request after close", slog.String("subject", msg.Subject))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	var req protocol.TranslateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		defer s.wg.Done()
		s.logger.Warn("failed to decode translate request", slogError(err))
		s.reply(msg, protocol.TranslateResult{
			Error:     fmt.Sprintf("decode request: %v", err),
			Stage:     string(StateIdle),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	go func() {
		defer s.wg.Done()
		res := s.orch.Run(s.ctx, Request{
			AudioFile:      req.AudioFile,
			RecordSeconds:  req.RecordSeconds,
			SourceLanguage: req.Source,
			TargetLanguage: req.Target,
		})
		s.reply(msg, ToProtocol(req.RequestID, res))
	}()
}

func (s *Service) reply(msg *nats.Msg, result protocol.TranslateResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to marshal translate result", slogError(err))
		return
	}
	if msg.Reply != "" {
		if err := msg.Respond(data); err != nil {
			s.logger.Warn("failed to respond to translate request", slogError(err))
		}
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTranslateResult, data); err != nil {
		s.logger.Warn("failed to publish translate result", slogError(err))
	}
}

func (s *Service) publishStage(_ context.Context, t Transition) {
	evt := protocol.StageEvent{
		SessionID: t.SessionID,
		From:      string(t.From),
		To:        string(t.To),
		ElapsedMS: t.Elapsed.Milliseconds(),
		Timestamp: t.At.UTC(),
	}
	if t.Err != nil {
		evt.Error = t.Err.Error()
	}
	if err := s.bus.PublishJSON(protocol.SubjectStagePrefix+"."+t.SessionID, evt); err != nil {
		s.logger.Debug("failed to publish stage event", slogError(err))
	}
}

// ToProtocol converts a run record into its bus representation.
func ToProtocol(requestID string, res Result) protocol.TranslateResult {
	out := protocol.TranslateResult{
		RequestID:  requestID,
		SessionID:  res.SessionID,
		Stage:      string(res.Stage),
		DurationMS: res.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if !res.OK() {
		out.Error = res.Error
		return out
	}
	out.SourceText = res.SourceText
	out.TranslatedText = res.TranslatedText
	out.SourceLanguage = res.SourceLanguage
	out.TargetLanguage = res.TargetLanguage
	out.OutputAudio = res.OutputAudio
	return out
}
