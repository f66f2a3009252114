package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/parleylabs/parley-core/internal/config"
	"github.com/parleylabs/parley-core/internal/convo"
	"github.com/parleylabs/parley-core/internal/llm"
	"github.com/parleylabs/parley-core/internal/playback"
	"github.com/parleylabs/parley-core/internal/translate"
	"github.com/parleylabs/parley-core/internal/tts"
)

// stubListener serves a fixed script, then blocks until the context ends.
type stubListener struct {
	mu     sync.Mutex
	script []string
}

func (s *stubListener) Listen(ctx context.Context, locale string) (string, error) {
	s.mu.Lock()
	if len(s.script) > 0 {
		next := s.script[0]
		s.script = s.script[1:]
		s.mu.Unlock()
		return next, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (s *stubListener) Close() {}

// finishSignal closes done when the loop reports an inactive state.
type finishSignal struct {
	done chan struct{}
	once sync.Once
}

func (f *finishSignal) OnMessage(convo.Message) {}

func (f *finishSignal) OnStateChange(st convo.State) {
	if !st.Active {
		f.once.Do(func() { close(f.done) })
	}
}

func newRecorderLoop(t *testing.T, listener *stubListener) *convo.Loop {
	t.Helper()
	log := newLogger()

	translator, err := translate.New(config.TranslateConfig{Mode: "mock"}, log)
	if err != nil {
		t.Fatalf("new translator: %v", err)
	}
	gen, err := llm.New(config.LLMConfig{Mode: "mock"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	synth, err := tts.New(config.TTSConfig{Mode: "mock"}, log)
	if err != nil {
		t.Fatalf("new synthesizer: %v", err)
	}
	player, err := playback.New(config.PlaybackConfig{Mode: "mock"}, log)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	pipe := convo.NewPipeline(translator, llm.NewAdapter(gen, log), synth, player, nil, log)

	loop, err := convo.NewLoop(config.ConversationConfig{
		InputLanguage:  "English",
		OutputLanguage: "English",
	}, listener, pipe, log)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return loop
}

func TestRecorderPersistsConversation(t *testing.T) {
	ctx := context.Background()
	cfg := config.HistoryConfig{Path: filepath.Join(t.TempDir(), "history.db"), RetentionMode: "session"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	loop := newRecorderLoop(t, &stubListener{script: []string{"hello there", "goodbye"}})
	signal := &finishSignal{done: make(chan struct{})}
	loop.AddObserver(NewRecorder(st, loop, newLogger()))
	loop.AddObserver(signal)

	if err := loop.Start(ctx); err != nil {
		t.Fatalf("start loop: %v", err)
	}
	select {
	case <-signal.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("loop did not finish")
	}

	convs, err := st.ListConversations(ctx, 10)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	if convs[0].InputLanguage != "English" || convs[0].EndedAt.IsZero() {
		t.Fatalf("unexpected conversation row: %+v", convs[0])
	}

	records, err := st.ListMessages(ctx, convs[0].ID, 20)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	kinds := make([]string, 0, len(records))
	for _, r := range records {
		kinds = append(kinds, r.Kind)
	}
	want := []string{"system", "user", "assistant", "system"}
	if len(kinds) != len(want) {
		t.Fatalf("expected kinds %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected kinds %v, got %v", want, kinds)
		}
	}
	if records[1].Text != "hello there" {
		t.Fatalf("unexpected user record: %+v", records[1])
	}

	// Typed turns while no conversation is active stay out of the store.
	if err := loop.Submit(ctx, "typed while idle"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	records, err = st.ListMessages(ctx, convs[0].ID, 20)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(records) != len(want) {
		t.Fatalf("idle submit should not be recorded, got %d records", len(records))
	}
}
