package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parleylabs/parley-core/internal/capture"
	"github.com/parleylabs/parley-core/internal/config"
	"github.com/parleylabs/parley-core/internal/language"
)

// ErrAlreadyActive is returned when Start is called on a running loop.
var ErrAlreadyActive = errors.New("conversation already active")

var stopWords = map[string]struct{}{
	"stop":    {},
	"exit":    {},
	"quit":    {},
	"goodbye": {},
}

// IsStopWord reports whether an utterance ends the conversation. Matching is
// case-insensitive and exact after trimming; "please stop now" does not match.
func IsStopWord(text string) bool {
	_, ok := stopWords[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Loop drives hands-free conversation: listen, run the turn pipeline, pause,
// repeat. One loop instance serves the whole process; conversations are
// started and stopped against it.
type Loop struct {
	pause    time.Duration
	listener capture.Listener
	pipeline *Pipeline
	log      *slog.Logger

	profiles atomic.Pointer[Profiles]
	msgCount atomic.Int64

	obsMu     sync.RWMutex
	observers []Observer

	mu             sync.Mutex
	active         bool
	phase          Phase
	cancel         context.CancelFunc
	conversationID string
	wg             *sync.WaitGroup

	turnMu sync.Mutex
}

func NewLoop(cfg config.ConversationConfig, listener capture.Listener, pipeline *Pipeline, log *slog.Logger) (*Loop, error) {
	input, err := language.Lookup(cfg.InputLanguage)
	if err != nil {
		return nil, fmt.Errorf("input language: %w", err)
	}
	output, err := language.Lookup(cfg.OutputLanguage)
	if err != nil {
		return nil, fmt.Errorf("output language: %w", err)
	}

	l := &Loop{
		pause:    time.Duration(cfg.TurnPauseMS) * time.Millisecond,
		listener: listener,
		pipeline: pipeline,
		log:      log.With(slog.String("component", "loop")),
		phase:    PhaseIdle,
	}
	p := Profiles{Input: input, Output: output}
	l.profiles.Store(&p)
	return l, nil
}

// AddObserver registers a transcript/state consumer. Observers added after
// Start may miss earlier events.
func (l *Loop) AddObserver(o Observer) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.observers = append(l.observers, o)
}

// Profiles returns the current language pair snapshot.
func (l *Loop) Profiles() Profiles {
	return *l.profiles.Load()
}

// SetProfiles swaps the language pair. An in-flight turn keeps the snapshot
// it started with; the swap applies from the next turn.
func (l *Loop) SetProfiles(inputName, outputName string) error {
	input, err := language.Lookup(inputName)
	if err != nil {
		return fmt.Errorf("input language: %w", err)
	}
	output, err := language.Lookup(outputName)
	if err != nil {
		return fmt.Errorf("output language: %w", err)
	}

	p := Profiles{Input: input, Output: output}
	l.profiles.Store(&p)
	l.log.Info("language profiles updated",
		slog.String("input", input.Name),
		slog.String("output", output.Name))
	l.emit(Message{
		Kind: KindSystem,
		Text: fmt.Sprintf("Languages updated: listening in %s, replying in %s.", input.Name, output.Name),
		Lang: "en",
		Time: time.Now(),
	})
	return nil
}

// State returns the loop's current activity and phase.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{Active: l.active, Phase: l.phase}
}

// ConversationID identifies the current (or most recent) conversation.
func (l *Loop) ConversationID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conversationID
}

// MessageCount reports how many transcript messages have been emitted since
// the last Start, or since construction if no conversation has run.
func (l *Loop) MessageCount() int64 {
	return l.msgCount.Load()
}

// Start begins hands-free listening. A second Start while active fails with
// ErrAlreadyActive.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.active {
		l.mu.Unlock()
		return ErrAlreadyActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	l.active = true
	l.phase = PhaseListening
	l.cancel = cancel
	l.conversationID = uuid.NewString()
	l.wg = wg
	id := l.conversationID
	l.mu.Unlock()
	l.msgCount.Store(0)

	l.log.Info("conversation started", slog.String("conversation_id", id))
	l.notifyState(State{Active: true, Phase: PhaseListening})
	l.emit(Message{Kind: KindSystem, Text: "Conversation started. Speak now!", Lang: "en", Time: time.Now()})

	go func() {
		defer wg.Done()
		defer l.finish()
		l.run(runCtx)
	}()
	return nil
}

// Stop ends the conversation and waits for the loop goroutine to exit. It is
// safe to call when idle.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	alreadyStopping := l.phase == PhaseStopping
	cancel := l.cancel
	wg := l.wg
	l.phase = PhaseStopping
	l.mu.Unlock()

	if !alreadyStopping {
		l.notifyState(State{Active: true, Phase: PhaseStopping})
		l.emit(Message{Kind: KindSystem, Text: "Conversation ended.", Lang: "en", Time: time.Now()})
	}
	cancel()
	wg.Wait()
}

// ListenOnce captures a single utterance without running a turn, for mic
// checks. It fails when a conversation is active; a Start racing past the
// check merely contends for the device, which serializes capture itself.
func (l *Loop) ListenOnce(ctx context.Context) (string, error) {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()
	if active {
		return "", ErrAlreadyActive
	}

	profiles := l.Profiles()
	return l.listener.Listen(ctx, profiles.Input.Locale)
}

// Submit runs a typed utterance through the turn pipeline. It works whether
// or not hands-free listening is active and serializes with voice turns.
func (l *Loop) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty message")
	}

	profiles := l.Profiles()
	l.turnMu.Lock()
	defer l.turnMu.Unlock()
	l.pipeline.RunTurn(ctx, text, profiles, l.emit)
	return nil
}

func (l *Loop) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		l.setPhase(PhaseListening)

		profiles := l.Profiles()
		text, err := l.listener.Listen(ctx, profiles.Input.Locale)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			switch {
			case errors.Is(err, capture.ErrNoSpeech):
				continue
			case errors.Is(err, capture.ErrUnintelligible):
				l.emit(Message{Kind: KindSystem, Text: "Sorry, I didn't catch that. Please try again.", Lang: "en", Time: time.Now()})
				continue
			default:
				// A device or backend failure ends the conversation; it is
				// reported once and the loop resets to idle.
				l.log.Error("capture failed", slog.String("error", err.Error()))
				l.emit(Message{Kind: KindError, Text: fmt.Sprintf("Speech service error: %v", err), Lang: "en", Time: time.Now()})
				return
			}
		}

		if IsStopWord(text) {
			l.log.Info("stop word heard", slog.String("text", text))
			// Entering the stopping phase first keeps a concurrent Stop from
			// emitting a second ended notice.
			l.setPhase(PhaseStopping)
			l.emit(Message{Kind: KindSystem, Text: "Conversation ended.", Lang: "en", Time: time.Now()})
			return
		}

		l.setPhase(PhaseProcessing)
		l.turnMu.Lock()
		l.pipeline.RunTurn(ctx, text, profiles, l.emit)
		l.turnMu.Unlock()

		// Brief pause so the mic does not pick up the tail of playback.
		if !l.sleep(ctx) {
			return
		}
	}
}

func (l *Loop) sleep(ctx context.Context) bool {
	if l.pause <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(l.pause):
		return true
	}
}

func (l *Loop) setPhase(p Phase) {
	l.mu.Lock()
	if l.phase == p || !l.active {
		l.mu.Unlock()
		return
	}
	l.phase = p
	l.mu.Unlock()
	l.notifyState(State{Active: true, Phase: p})
}

func (l *Loop) finish() {
	l.mu.Lock()
	l.active = false
	l.phase = PhaseIdle
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	// Release the run context even when the loop exits on its own.
	if cancel != nil {
		cancel()
	}

	l.log.Info("conversation stopped")
	l.notifyState(State{Active: false, Phase: PhaseIdle})
}

func (l *Loop) emit(msg Message) {
	l.msgCount.Add(1)
	l.obsMu.RLock()
	observers := l.observers
	l.obsMu.RUnlock()
	for _, o := range observers {
		o.OnMessage(msg)
	}
}

func (l *Loop) notifyState(s State) {
	l.obsMu.RLock()
	observers := l.observers
	l.obsMu.RUnlock()
	for _, o := range observers {
		o.OnStateChange(s)
	}
}
