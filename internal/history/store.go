package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parleylabs/parley-core/internal/config"
	_ "modernc.org/sqlite"
)

// Conversation is a recorded conversation with its language profile.
type Conversation struct {
	ID             string
	InputLanguage  string
	OutputLanguage string
	StartedAt      time.Time
	EndedAt        time.Time
}

// Record is a single persisted transcript entry.
type Record struct {
	ID             int64
	ConversationID string
	Kind           string
	Text           string
	Language       string
	CreatedAt      time.Time
}

// Store wraps a SQLite-backed transcript store.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the history store according to config. In ephemeral mode
// no database is opened and every write is a no-op; in session mode any
// transcripts from earlier runs are cleared.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.RetentionMode == "session" {
		if err := s.Clear(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("clear prior session history: %w", err)
		}
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("history vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS conversations (
    conversation_id TEXT PRIMARY KEY,
    input_language TEXT,
    output_language TEXT,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    text TEXT NOT NULL,
    language TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Healthy reports whether the backing database is reachable. Ephemeral
// stores are always healthy.
func (s *Store) Healthy() error {
	if s.db == nil {
		return nil
	}
	return s.db.Ping()
}

// BeginConversation ensures a conversation row exists.
func (s *Store) BeginConversation(ctx context.Context, conversationID, inputLang, outputLang string) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations(conversation_id, input_language, output_language, started_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET input_language=excluded.input_language, output_language=excluded.output_language`,
		conversationID, inputLang, outputLang, s.clock().UTC())
	return err
}

// EndConversation stamps the conversation's end time.
func (s *Store) EndConversation(ctx context.Context, conversationID string) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET ended_at = ? WHERE conversation_id = ? AND ended_at IS NULL`,
		s.clock().UTC(), conversationID)
	return err
}

// AppendMessage writes a transcript entry into the store.
func (s *Store) AppendMessage(ctx context.Context, rec Record) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(conversation_id, kind, text, language, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		rec.ConversationID, rec.Kind, rec.Text, rec.Language, rec.CreatedAt.UTC())
	return err
}

// ListMessages retrieves up to limit entries for a conversation ordered ascending by time.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]Record, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, kind, text, language, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var created string
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.Kind, &r.Text, &r.Language, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListConversations retrieves up to limit conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, input_language, output_language, started_at, ended_at
		 FROM conversations ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		var started string
		var ended sql.NullString
		if err := rows.Scan(&c.ID, &c.InputLanguage, &c.OutputLanguage, &started, &ended); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
			c.StartedAt = ts
		}
		if ended.Valid {
			if ts, err := time.Parse(time.RFC3339Nano, ended.String); err == nil {
				c.EndedAt = ts
			}
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE started_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxConversations > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id IN (
			SELECT conversation_id FROM conversations ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxConversations)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Clear removes every stored conversation and message.
func (s *Store) Clear(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}
