package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/parleylabs/parley-core/internal/bus"
	"github.com/parleylabs/parley-core/internal/convo"
	"github.com/parleylabs/parley-core/internal/protocol"
)

// DiagSource produces the diagnostics payload served on diag.request.
type DiagSource interface {
	Report() protocol.DiagReport
}

// Service exposes the conversation loop over the bus. It republishes
// transcript entries and state changes, and executes start/stop/send/profile
// commands received from clients.
type Service struct {
	bus    *bus.Client
	loop   *convo.Loop
	diag   DiagSource
	logger *slog.Logger

	subs     []*nats.Subscription
	wantSubs int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewService(parent context.Context, busClient *bus.Client, loop *convo.Loop, diag DiagSource, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:    busClient,
		loop:   loop,
		diag:   diag,
		logger: logger.With(slog.String("component", "bridge")),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Service) Start() error {
	handlers := []struct {
		subject string
		fn      nats.MsgHandler
	}{
		{protocol.SubjectConversationStart, s.handleStart},
		{protocol.SubjectConversationStop, s.handleStop},
		{protocol.SubjectChatSend, s.handleSend},
		{protocol.SubjectSettingsProfiles, s.handleProfiles},
		{protocol.SubjectDiagRequest, s.handleDiag},
		{protocol.SubjectDiagListen, s.handleListenTest},
	}
	for _, h := range handlers {
		sub, err := s.bus.Conn().Subscribe(h.subject, h.fn)
		if err != nil {
			s.drain()
			return err
		}
		s.subs = append(s.subs, sub)
	}
	s.wantSubs = len(handlers)
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.drain()
	s.wg.Wait()
}

func (s *Service) drain() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Healthy() bool {
	return s.wantSubs > 0 && len(s.subs) == s.wantSubs
}

// OnMessage republishes a transcript entry on chat.message.
func (s *Service) OnMessage(msg convo.Message) {
	out := protocol.ChatMessage{
		ConversationID: s.loop.ConversationID(),
		Kind:           string(msg.Kind),
		Text:           msg.Text,
		Language:       msg.Lang,
		Timestamp:      msg.Time,
	}
	if err := s.publish(protocol.SubjectChatMessage, out); err != nil {
		s.logger.Warn("bridge failed to publish chat message", slogError(err))
	}
}

// OnStateChange republishes a loop transition on conversation.state.
func (s *Service) OnStateChange(st convo.State) {
	out := protocol.StateUpdate{
		ConversationID: s.loop.ConversationID(),
		Active:         st.Active,
		Phase:          string(st.Phase),
		Timestamp:      time.Now().UTC(),
	}
	if err := s.publish(protocol.SubjectConversationState, out); err != nil {
		s.logger.Warn("bridge failed to publish state update", slogError(err))
	}
}

func (s *Service) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.bus.Conn().Publish(subject, data)
}

func (s *Service) handleStart(msg *nats.Msg) {
	err := s.loop.Start(s.ctx)
	if err != nil {
		s.logger.Warn("bridge start command rejected", slogError(err))
	}
	s.ack(msg, err)
}

func (s *Service) handleStop(msg *nats.Msg) {
	// Stop waits for the loop goroutine, so keep the delivery goroutine free.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop.Stop()
		s.ack(msg, nil)
	}()
}

func (s *Service) handleSend(msg *nats.Msg) {
	var req protocol.SendTextRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("bridge failed to decode send request", slogError(err))
		s.ack(msg, err)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.loop.Submit(s.ctx, req.Text)
		if err != nil {
			s.logger.Warn("bridge send command failed", slogError(err))
		}
		s.ack(msg, err)
	}()
}

func (s *Service) handleProfiles(msg *nats.Msg) {
	var req protocol.ProfileUpdate
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("bridge failed to decode profile update", slogError(err))
		s.ack(msg, err)
		return
	}
	err := s.loop.SetProfiles(req.InputLanguage, req.OutputLanguage)
	if err != nil {
		s.logger.Warn("bridge profile update rejected", slogError(err))
	}
	s.ack(msg, err)
}

func (s *Service) handleDiag(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	report := s.diag.Report()
	data, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn("bridge failed to encode diag report", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("bridge failed to respond to diag request", slogError(err))
	}
}

// listenTestTimeout backstops a mic check; capture already bounds itself by
// its own wait timeout.
const listenTestTimeout = 30 * time.Second

func (s *Service) handleListenTest(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, listenTestTimeout)
		defer cancel()

		result := protocol.ListenTestResult{OK: true}
		text, err := s.loop.ListenOnce(ctx)
		if err != nil {
			s.logger.Warn("bridge listen test failed", slogError(err))
			result = protocol.ListenTestResult{Error: err.Error()}
		} else {
			result.Transcript = text
		}
		data, err := json.Marshal(result)
		if err != nil {
			return
		}
		if err := msg.Respond(data); err != nil {
			s.logger.Warn("bridge failed to respond to listen test", slogError(err))
		}
	}()
}

// ack replies to request-style commands; fire-and-forget publishes skip it.
func (s *Service) ack(msg *nats.Msg, cmdErr error) {
	if msg.Reply == "" {
		return
	}
	out := protocol.Ack{OK: cmdErr == nil}
	if cmdErr != nil {
		out.Error = cmdErr.Error()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("bridge failed to respond", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
