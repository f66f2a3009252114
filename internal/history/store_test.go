package history

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parleylabs/parley-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.HistoryConfig{Path: filepath.Join(t.TempDir(), "history.db"), RetentionMode: "ephemeral"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.AppendMessage(ctx, Record{ConversationID: "c1", Kind: "user", Text: "hi"}); err != nil {
		t.Fatalf("append should be a no-op: %v", err)
	}
	records, err := st.ListMessages(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if records != nil {
		t.Fatalf("ephemeral store returned records: %v", records)
	}
	if _, err := os.Stat(cfg.Path); !os.IsNotExist(err) {
		t.Fatalf("ephemeral store should not create a database file")
	}
}

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	cfg := config.HistoryConfig{Path: filepath.Join(t.TempDir(), "history.db"), RetentionMode: "session"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.BeginConversation(ctx, "conv-1", "Spanish", "French"); err != nil {
		t.Fatalf("begin conversation: %v", err)
	}
	if err := st.AppendMessage(ctx, Record{ConversationID: "conv-1", Kind: "user", Text: "hola", Language: "es"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if err := st.AppendMessage(ctx, Record{ConversationID: "conv-1", Kind: "assistant", Text: "bonjour", Language: "fr"}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	records, err := st.ListMessages(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Kind != "user" || records[0].Text != "hola" || records[0].Language != "es" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Kind != "assistant" || records[1].Text != "bonjour" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}

	convs, err := st.ListConversations(ctx, 10)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	if convs[0].InputLanguage != "Spanish" || convs[0].OutputLanguage != "French" {
		t.Fatalf("unexpected conversation languages: %+v", convs[0])
	}
	if !convs[0].EndedAt.IsZero() {
		t.Fatalf("conversation should not be ended yet")
	}
}

func TestEndConversationStampsEnd(t *testing.T) {
	ctx := context.Background()
	cfg := config.HistoryConfig{Path: filepath.Join(t.TempDir(), "history.db"), RetentionMode: "session"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.BeginConversation(ctx, "conv-1", "English", "English"); err != nil {
		t.Fatalf("begin conversation: %v", err)
	}
	if err := st.EndConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("end conversation: %v", err)
	}

	convs, err := st.ListConversations(ctx, 10)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].EndedAt.IsZero() {
		t.Fatalf("expected ended conversation, got %+v", convs)
	}
}

func TestSessionModeClearsOnOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	cfg := config.HistoryConfig{Path: path, RetentionMode: "session"}

	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	if err := st.BeginConversation(ctx, "conv-1", "English", "English"); err != nil {
		t.Fatalf("begin conversation: %v", err)
	}
	if err := st.AppendMessage(ctx, Record{ConversationID: "conv-1", Kind: "user", Text: "hi"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("reopen history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	convs, err := st.ListConversations(ctx, 10)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("session history should be cleared on open, got %d conversations", len(convs))
	}
}

func TestPersistentModeSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	cfg := config.HistoryConfig{Path: path, RetentionMode: "persistent"}

	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	if err := st.BeginConversation(ctx, "conv-1", "English", "German"); err != nil {
		t.Fatalf("begin conversation: %v", err)
	}
	if err := st.AppendMessage(ctx, Record{ConversationID: "conv-1", Kind: "assistant", Text: "hallo", Language: "de"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("reopen history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	records, err := st.ListMessages(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(records) != 1 || records[0].Text != "hallo" {
		t.Fatalf("expected persisted record, got %+v", records)
	}
}

func TestPruneByDaysAndMaxConversations(t *testing.T) {
	ctx := context.Background()
	cfg := config.HistoryConfig{
		Path:             filepath.Join(t.TempDir(), "history.db"),
		RetentionMode:    "persistent",
		RetentionDays:    1,
		MaxConversations: 1,
	}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	st.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := st.BeginConversation(ctx, "old-conv", "English", "English"); err != nil {
		t.Fatalf("begin conversation: %v", err)
	}
	if err := st.AppendMessage(ctx, Record{ConversationID: "old-conv", Kind: "user", Text: "old"}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	st.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := st.BeginConversation(ctx, "new-conv", "English", "English"); err != nil {
		t.Fatalf("begin conversation: %v", err)
	}
	if err := st.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := st.ListMessages(ctx, "old-conv", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected old conversation pruned")
	}
	convs, err := st.ListConversations(ctx, 10)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "new-conv" {
		t.Fatalf("expected only new conversation, got %+v", convs)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	cfg := config.HistoryConfig{Path: filepath.Join(t.TempDir(), "history.db"), RetentionMode: "persistent"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.BeginConversation(ctx, "conv-1", "English", "English"); err != nil {
		t.Fatalf("begin conversation: %v", err)
	}
	if err := st.AppendMessage(ctx, Record{ConversationID: "conv-1", Kind: "user", Text: "hi"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	records, err := st.ListMessages(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected cleared store")
	}
	convs, err := st.ListConversations(ctx, 10)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("expected no conversations after clear")
	}
}
