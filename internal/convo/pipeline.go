package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/parleylabs/parley-core/internal/llm"
	"github.com/parleylabs/parley-core/internal/playback"
	"github.com/parleylabs/parley-core/internal/translate"
	"github.com/parleylabs/parley-core/internal/tts"
)

// Turn summarizes one processed utterance. It lives only for the duration of
// the turn and is never persisted.
type Turn struct {
	SourceText      string
	SourceIsEnglish bool
	Prompt          string   // English text fed to inference
	Reply           string   // text delivered to the user
	Delivered       bool     // an assistant message was emitted
	Clip            tts.Clip // zero when synthesis was skipped or failed
	Synthesized     bool
	Played          bool
}

// Pipeline runs one conversation turn: translate the utterance to English,
// generate a reply, translate it back, and speak it. Stage failures are
// isolated so a turn always ends with a terminal message instead of tearing
// the loop down.
type Pipeline struct {
	translator translate.Translator
	assistant  *llm.Adapter
	synth      tts.Synthesizer
	player     playback.Player
	metrics    *Metrics
	tracer     trace.Tracer
	log        *slog.Logger
}

func NewPipeline(translator translate.Translator, assistant *llm.Adapter, synth tts.Synthesizer, player playback.Player, metrics *Metrics, log *slog.Logger) *Pipeline {
	return &Pipeline{
		translator: translator,
		assistant:  assistant,
		synth:      synth,
		player:     player,
		metrics:    metrics,
		tracer:     otel.Tracer("github.com/parleylabs/parley-core/convo"),
		log:        log.With(slog.String("component", "pipeline")),
	}
}

// RunTurn emits exactly one user message for the utterance, then either an
// assistant reply or an error explaining why no reply could be produced.
func (p *Pipeline) RunTurn(ctx context.Context, text string, profiles Profiles, emit func(Message)) Turn {
	text = strings.TrimSpace(text)
	turn := Turn{SourceText: text, SourceIsEnglish: profiles.Input.English()}
	if text == "" {
		return turn
	}

	ctx, span := p.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("input.language", profiles.Input.Code),
		attribute.String("output.language", profiles.Output.Code),
	))
	defer span.End()

	start := time.Now()
	p.metrics.TurnStarted()
	emit(Message{Kind: KindUser, Text: text, Lang: profiles.Input.Code, Time: time.Now()})

	// English is the pivot language; same-language turns skip translation
	// entirely.
	turn.Prompt = text
	if !profiles.Input.English() {
		translated, err := p.translator.Translate(ctx, text, translate.Auto, "en")
		if err != nil {
			p.log.Warn("inbound translation failed", slog.String("error", err.Error()))
			p.metrics.StageFailed("translate_in")
			span.RecordError(err)
			span.SetStatus(codes.Error, "inbound translation failed")
			emit(Message{Kind: KindError, Text: fmt.Sprintf("Translation error: %v", err), Lang: "en", Time: time.Now()})
			p.finish(span, start, "error")
			return turn
		}
		turn.Prompt = translated
	}

	turn.Reply = p.assistant.Reply(ctx, turn.Prompt)

	spoken := turn.Reply
	if !profiles.Output.English() {
		translated, err := p.translator.Translate(ctx, turn.Reply, "en", profiles.Output.Code)
		if err != nil {
			p.log.Warn("outbound translation failed", slog.String("error", err.Error()))
			p.metrics.StageFailed("translate_out")
			span.RecordError(err)
			emit(Message{Kind: KindError, Text: fmt.Sprintf("Translation error: %v", err), Lang: "en", Time: time.Now()})
			emit(Message{Kind: KindAssistant, Text: turn.Reply, Lang: "en", Time: time.Now()})
			turn.Delivered = true
			p.finish(span, start, "degraded")
			return turn
		}
		spoken = translated
	}

	turn.Reply = spoken
	emit(Message{Kind: KindAssistant, Text: spoken, Lang: profiles.Output.Code, Time: time.Now()})
	turn.Delivered = true

	clip, err := p.synth.Synthesize(ctx, spoken, profiles.Output.Code)
	if err != nil {
		p.log.Warn("speech output failed", slog.String("error", err.Error()))
		p.metrics.StageFailed("synthesize")
		span.RecordError(err)
		emit(Message{Kind: KindSystem, Text: fmt.Sprintf("Speech output unavailable: %v", err), Lang: "en", Time: time.Now()})
		p.finish(span, start, "degraded")
		return turn
	}
	turn.Clip = clip
	turn.Synthesized = true

	if err := p.player.Play(ctx, clip); err != nil {
		p.log.Warn("speech output failed", slog.String("error", err.Error()))
		p.metrics.StageFailed("playback")
		span.RecordError(err)
		emit(Message{Kind: KindSystem, Text: fmt.Sprintf("Speech output unavailable: %v", err), Lang: "en", Time: time.Now()})
		p.finish(span, start, "degraded")
		return turn
	}
	turn.Played = true

	p.finish(span, start, "ok")
	return turn
}

func (p *Pipeline) finish(span trace.Span, start time.Time, outcome string) {
	span.SetAttributes(attribute.String("turn.outcome", outcome))
	p.metrics.TurnCompleted(time.Since(start), outcome)
}
