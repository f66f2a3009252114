package convo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parleylabs/parley-core/internal/capture"
	"github.com/parleylabs/parley-core/internal/config"
	"github.com/parleylabs/parley-core/internal/llm"
)

// scriptListener replays a fixed sequence of utterances and errors, then
// blocks until the context is canceled.
type scriptListener struct {
	mu      sync.Mutex
	script  []any
	idx     int
	locales []string
}

func (s *scriptListener) Listen(ctx context.Context, locale string) (string, error) {
	s.mu.Lock()
	s.locales = append(s.locales, locale)
	if s.idx < len(s.script) {
		item := s.script[s.idx]
		s.idx++
		s.mu.Unlock()
		switch v := item.(type) {
		case string:
			return v, nil
		case error:
			return "", v
		}
		return "", errors.New("bad script entry")
	}
	s.mu.Unlock()

	<-ctx.Done()
	return "", ctx.Err()
}

func (s *scriptListener) Close() {}

type recorder struct {
	mu       sync.Mutex
	messages []Message
	states   []State
	done     chan struct{}
	once     sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) OnMessage(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *recorder) OnStateChange(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
	if !s.Active {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) waitIdle(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not become idle")
	}
}

func (r *recorder) byKind(kind Kind) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func newTestLoop(t *testing.T, listener capture.Listener, p *Pipeline, input, output string) *Loop {
	t.Helper()
	loop, err := NewLoop(config.ConversationConfig{
		InputLanguage:  input,
		OutputLanguage: output,
		TurnPauseMS:    0,
	}, listener, p, testLogger())
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return loop
}

func TestIsStopWord(t *testing.T) {
	matches := []string{"stop", "STOP", "  Stop  ", "exit", "quit", "goodbye", "GoodBye"}
	for _, s := range matches {
		if !IsStopWord(s) {
			t.Fatalf("expected %q to match", s)
		}
	}
	misses := []string{"please stop now", "stopping", "good bye", "", "   ", "quit!", "exit the room"}
	for _, s := range misses {
		if IsStopWord(s) {
			t.Fatalf("expected %q not to match", s)
		}
	}
}

func TestLoopRunsTurnsUntilStopWord(t *testing.T) {
	listener := &scriptListener{script: []any{"hola amigo", "goodbye"}}
	tr := &fakeTranslator{out: func(text, _, target string) string {
		switch target {
		case "en":
			return "hello friend"
		case "fr":
			return "ravi de vous rencontrer"
		}
		return text
	}}
	p := newTestPipeline(tr, &fakeGenerator{reply: "nice to meet you"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "Spanish", "French")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.waitIdle(t)

	users := rec.byKind(KindUser)
	if len(users) != 1 || users[0].Text != "hola amigo" {
		t.Fatalf("expected exactly one user message, got %v", users)
	}
	assistants := rec.byKind(KindAssistant)
	if len(assistants) != 1 || assistants[0].Text != "ravi de vous rencontrer" {
		t.Fatalf("expected exactly one assistant message, got %v", assistants)
	}

	// The stop word is consumed by the loop, never surfaced as a user turn.
	for _, m := range users {
		if m.Text == "goodbye" {
			t.Fatal("stop word leaked into the transcript")
		}
	}

	listener.mu.Lock()
	locale := listener.locales[0]
	listener.mu.Unlock()
	if locale != "es-ES" {
		t.Fatalf("expected listening locale es-ES, got %q", locale)
	}

	if state := loop.State(); state.Active || state.Phase != PhaseIdle {
		t.Fatalf("expected idle after stop word, got %+v", state)
	}
}

func TestLoopDuplicateStartRejected(t *testing.T) {
	listener := &scriptListener{}
	p := newTestPipeline(&fakeTranslator{}, &fakeGenerator{reply: "x"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer loop.Stop()

	if err := loop.Start(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestLoopStopCancelsListening(t *testing.T) {
	listener := &scriptListener{}
	p := newTestPipeline(&fakeTranslator{}, &fakeGenerator{reply: "x"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		loop.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}

	if state := loop.State(); state.Active {
		t.Fatalf("expected inactive after stop, got %+v", state)
	}
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	loop.Stop()
}

func TestLoopSilentTimeoutKeepsListening(t *testing.T) {
	listener := &scriptListener{script: []any{capture.ErrNoSpeech, capture.ErrNoSpeech, "goodbye"}}
	p := newTestPipeline(&fakeTranslator{}, &fakeGenerator{reply: "x"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.waitIdle(t)

	if errs := rec.byKind(KindError); len(errs) != 0 {
		t.Fatalf("timeouts must not produce error messages: %v", errs)
	}
	for _, m := range rec.byKind(KindSystem) {
		if m.Text == "Sorry, I didn't catch that. Please try again." {
			t.Fatal("timeout must stay silent, not nag the user")
		}
	}
}

func TestLoopUnintelligibleGivesNotice(t *testing.T) {
	listener := &scriptListener{script: []any{capture.ErrUnintelligible, "goodbye"}}
	p := newTestPipeline(&fakeTranslator{}, &fakeGenerator{reply: "x"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.waitIdle(t)

	var found bool
	for _, m := range rec.byKind(KindSystem) {
		if m.Text == "Sorry, I didn't catch that. Please try again." {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a notice for unintelligible speech")
	}
	if users := rec.byKind(KindUser); len(users) != 0 {
		t.Fatalf("unintelligible speech must not create user messages: %v", users)
	}
}

func TestLoopDeviceErrorEndsConversation(t *testing.T) {
	listener := &scriptListener{script: []any{errors.New("mic unplugged")}}
	p := newTestPipeline(&fakeTranslator{}, &fakeGenerator{reply: "x"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.waitIdle(t)

	errs := rec.byKind(KindError)
	if len(errs) != 1 {
		t.Fatalf("expected one error message, got %v", errs)
	}
	if errs[0].Text != "Speech service error: mic unplugged" {
		t.Fatalf("unexpected error text %q", errs[0].Text)
	}
	if state := loop.State(); state.Active || state.Phase != PhaseIdle {
		t.Fatalf("device error must reset the loop to idle, got %+v", state)
	}

	// The loop stays restartable after a device failure.
	listener.mu.Lock()
	listener.script = []any{"goodbye"}
	listener.idx = 0
	listener.mu.Unlock()
	rec2 := newRecorder()
	loop.AddObserver(rec2)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("restart after device error: %v", err)
	}
	rec2.waitIdle(t)
}

func TestSubmitRunsTypedTurn(t *testing.T) {
	listener := &scriptListener{}
	tr := &fakeTranslator{}
	p := newTestPipeline(tr, &fakeGenerator{reply: "typed reply"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Submit(context.Background(), "hello in writing"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	users := rec.byKind(KindUser)
	assistants := rec.byKind(KindAssistant)
	if len(users) != 1 || users[0].Text != "hello in writing" {
		t.Fatalf("unexpected user messages %v", users)
	}
	if len(assistants) != 1 || assistants[0].Text != "typed reply" {
		t.Fatalf("unexpected assistant messages %v", assistants)
	}

	if err := loop.Submit(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty submission")
	}
}

func TestSetProfilesAppliesToNextTurn(t *testing.T) {
	listener := &scriptListener{}
	tr := &fakeTranslator{}
	p := newTestPipeline(tr, &fakeGenerator{reply: "reply"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "Spanish", "Spanish")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Submit(context.Background(), "hola"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := loop.SetProfiles("German", "Japanese"); err != nil {
		t.Fatalf("set profiles: %v", err)
	}
	if err := loop.Submit(context.Background(), "guten tag"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	// First turn: es in, es out. Second turn: de in, ja out.
	if tr.calls[1][2] != "es" {
		t.Fatalf("first turn should answer in Spanish, got %v", tr.calls[1])
	}
	last := tr.calls[len(tr.calls)-1]
	if last[2] != "ja" {
		t.Fatalf("second turn should answer in Japanese, got %v", last)
	}

	if err := loop.SetProfiles("Klingon", "English"); err == nil {
		t.Fatal("expected error for unknown language")
	}
}

func TestSetProfilesUnchangedDuringTurnSnapshot(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	tr := &fakeTranslator{out: func(text, _, target string) string { return text + ":" + target }}
	gen := &blockingGenerator{started: started, release: release}
	p := NewPipeline(tr, llm.NewAdapter(gen, testLogger()), &fakeSynth{}, &fakePlayer{}, nil, testLogger())
	loop := newTestLoop(t, &scriptListener{}, p, "Spanish", "Spanish")

	var msgs []Message
	var msgsMu sync.Mutex
	loop.AddObserver(observerFunc{onMessage: func(m Message) {
		msgsMu.Lock()
		msgs = append(msgs, m)
		msgsMu.Unlock()
	}})

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Submit(context.Background(), "hola")
	}()

	<-started
	if err := loop.SetProfiles("French", "French"); err != nil {
		t.Fatalf("set profiles: %v", err)
	}
	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("submit: %v", err)
	}

	// The in-flight turn must keep its Spanish snapshot even though the
	// profiles changed mid-turn.
	msgsMu.Lock()
	defer msgsMu.Unlock()
	for _, m := range msgs {
		if m.Kind == KindAssistant && m.Lang != "es" {
			t.Fatalf("in-flight turn used swapped profile: %+v", m)
		}
	}
}

type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingGenerator) Generate(ctx context.Context, _ string) (string, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "done", nil
}

type observerFunc struct {
	onMessage func(Message)
	onState   func(State)
}

func (o observerFunc) OnMessage(m Message) {
	if o.onMessage != nil {
		o.onMessage(m)
	}
}

func (o observerFunc) OnStateChange(s State) {
	if o.onState != nil {
		o.onState(s)
	}
}

func TestLoopStateSequence(t *testing.T) {
	listener := &scriptListener{script: []any{"hi", "goodbye"}}
	p := newTestPipeline(&fakeTranslator{}, &fakeGenerator{reply: "hello"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.waitIdle(t)

	rec.mu.Lock()
	states := append([]State(nil), rec.states...)
	rec.mu.Unlock()

	if len(states) < 3 {
		t.Fatalf("expected several transitions, got %v", states)
	}
	if first := states[0]; !first.Active || first.Phase != PhaseListening {
		t.Fatalf("expected to start listening, got %+v", first)
	}
	var sawProcessing bool
	for _, s := range states {
		if s.Phase == PhaseProcessing {
			sawProcessing = true
		}
	}
	if !sawProcessing {
		t.Fatalf("expected a processing phase, got %v", states)
	}
	if last := states[len(states)-1]; last.Active || last.Phase != PhaseIdle {
		t.Fatalf("expected to end idle, got %+v", last)
	}
}

func TestConversationIDChangesPerStart(t *testing.T) {
	listener := &scriptListener{script: []any{"goodbye"}}
	p := newTestPipeline(&fakeTranslator{}, &fakeGenerator{reply: "x"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := loop.ConversationID()
	rec.waitIdle(t)

	listener.mu.Lock()
	listener.script = []any{"goodbye"}
	listener.idx = 0
	listener.mu.Unlock()

	rec2 := newRecorder()
	loop.AddObserver(rec2)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	second := loop.ConversationID()
	rec2.waitIdle(t)

	if first == "" || second == "" || first == second {
		t.Fatalf("expected distinct conversation ids, got %q and %q", first, second)
	}
}

func TestMessageCountResetsPerConversation(t *testing.T) {
	listener := &scriptListener{script: []any{"hi", "goodbye"}}
	p := newTestPipeline(&fakeTranslator{}, &fakeGenerator{reply: "hello"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	rec := newRecorder()
	loop.AddObserver(rec)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.waitIdle(t)

	// Started notice, user, assistant, ended notice.
	if got := loop.MessageCount(); got != 4 {
		t.Fatalf("expected 4 messages, got %d", got)
	}

	listener.mu.Lock()
	listener.script = []any{"goodbye"}
	listener.idx = 0
	listener.mu.Unlock()

	rec2 := newRecorder()
	loop.AddObserver(rec2)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	rec2.waitIdle(t)

	if got := loop.MessageCount(); got != 2 {
		t.Fatalf("expected counter to reset, got %d", got)
	}
}

func TestListenOnceOutsideConversation(t *testing.T) {
	listener := &scriptListener{script: []any{"test one two"}}
	p := newTestPipeline(&fakeTranslator{}, &fakeGenerator{reply: "x"}, &fakeSynth{}, &fakePlayer{})
	loop := newTestLoop(t, listener, p, "English", "English")

	rec := newRecorder()
	loop.AddObserver(rec)

	text, err := loop.ListenOnce(context.Background())
	if err != nil {
		t.Fatalf("listen once: %v", err)
	}
	if text != "test one two" {
		t.Fatalf("unexpected transcript %q", text)
	}
	rec.mu.Lock()
	heard := len(rec.messages)
	rec.mu.Unlock()
	if heard != 0 {
		t.Fatalf("a mic check must not touch the transcript, got %d messages", heard)
	}

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer loop.Stop()
	if _, err := loop.ListenOnce(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}
