package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/parleylabs/parley-core/internal/convo"
)

const writeTimeout = 2 * time.Second

// Recorder persists the transcript of the active conversation. It attaches to
// the conversation loop as an observer; messages emitted while no conversation
// is active are not recorded.
type Recorder struct {
	store *Store
	loop  *convo.Loop
	log   *slog.Logger
}

func NewRecorder(store *Store, loop *convo.Loop, log *slog.Logger) *Recorder {
	return &Recorder{
		store: store,
		loop:  loop,
		log:   log.With(slog.String("component", "history")),
	}
}

func (r *Recorder) OnMessage(msg convo.Message) {
	id := r.loop.ConversationID()
	if id == "" || !r.loop.State().Active {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	rec := Record{
		ConversationID: id,
		Kind:           string(msg.Kind),
		Text:           msg.Text,
		Language:       msg.Lang,
		CreatedAt:      msg.Time,
	}
	if err := r.store.AppendMessage(ctx, rec); err != nil {
		r.log.Warn("record message failed", slog.String("error", err.Error()))
	}
}

func (r *Recorder) OnStateChange(st convo.State) {
	id := r.loop.ConversationID()
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if st.Active {
		profiles := r.loop.Profiles()
		if err := r.store.BeginConversation(ctx, id, profiles.Input.Name, profiles.Output.Name); err != nil {
			r.log.Warn("record conversation start failed", slog.String("error", err.Error()))
		}
		return
	}
	if err := r.store.EndConversation(ctx, id); err != nil {
		r.log.Warn("record conversation end failed", slog.String("error", err.Error()))
	}
}
