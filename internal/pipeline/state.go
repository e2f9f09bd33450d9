package pipeline

import (
	"context"
	"time"
)

// State is a step of a pipeline run.
type State string

const (
	StateIdle          State = "idle"
	StateCapturing     State = "capturing"
	StateLoading       State = "loading"
	StatePreprocessing State = "preprocessing"
	StateRecognizing   State = "recognizing"
	StateTranslating   State = "translating"
	StateSynthesizing  State = "synthesizing"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Transition describes one state change of a run. Elapsed is the time spent
// in From. Err is set only on transitions into StateFailed.
type Transition struct {
	SessionID string
	Request   Request
	From      State
	To        State
	At        time.Time
	Elapsed   time.Duration
	Err       error
	// Result is set on transitions into a terminal state.
	Result *Result
}

// Observer is notified of every transition in order. Observers run on the
// pipeline goroutine and must not block for long.
type Observer interface {
	Observe(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition)

func (f ObserverFunc) Observe(ctx context.Context, t Transition) { f(ctx, t) }
