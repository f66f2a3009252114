package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parleylabs/parley-core/internal/bridge"
	"github.com/parleylabs/parley-core/internal/bus"
	"github.com/parleylabs/parley-core/internal/capture"
	"github.com/parleylabs/parley-core/internal/config"
	"github.com/parleylabs/parley-core/internal/convo"
	"github.com/parleylabs/parley-core/internal/diag"
	"github.com/parleylabs/parley-core/internal/history"
	"github.com/parleylabs/parley-core/internal/llm"
	"github.com/parleylabs/parley-core/internal/natsserver"
	"github.com/parleylabs/parley-core/internal/playback"
	"github.com/parleylabs/parley-core/internal/protocol"
	"github.com/parleylabs/parley-core/internal/translate"
	"github.com/parleylabs/parley-core/internal/tts"
)

// Runtime assembles the capture, translation, inference, synthesis, and
// playback components into a conversation service exposed over the bus.
type Runtime struct {
	cfg            config.Config
	version        string
	logger         *slog.Logger
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

// Start runs the runtime until ctx is canceled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	listener, err := capture.New(r.cfg.Capture, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize capture: %w", err)
	}
	defer listener.Close()

	translator, err := translate.New(r.cfg.Translate, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize translator: %w", err)
	}

	generator, err := llm.New(r.cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize language model: %w", err)
	}
	assistant := llm.NewAdapter(generator, r.logger)

	synth, err := tts.New(r.cfg.TTS, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize speech synthesis: %w", err)
	}

	player, err := playback.New(r.cfg.Playback, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize playback: %w", err)
	}
	defer player.Close()

	// Requires the meter provider installed by setupTelemetry.
	metrics, err := convo.NewMetrics()
	if err != nil {
		r.logger.Warn("failed to initialize turn metrics", slog.String("error", err.Error()))
	}

	pipeline := convo.NewPipeline(translator, assistant, synth, player, metrics, r.logger)
	loop, err := convo.NewLoop(r.cfg.Conversation, listener, pipeline, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize conversation loop: %w", err)
	}
	defer loop.Stop()

	loop.AddObserver(history.NewRecorder(store, loop, r.logger))

	diagSvc := diag.NewService(r.cfg.RuntimeName, r.version, r.logger)
	diagSvc.Register("bus", func() error {
		if !busClient.Healthy() {
			return errors.New("nats connection down")
		}
		return nil
	})
	diagSvc.Register("history", store.Healthy)
	if p, ok := listener.(interface{ Probe() error }); ok {
		diagSvc.Register("capture", p.Probe)
	}
	registerKeyProbes(diagSvc, r.cfg)

	bridgeSvc := bridge.NewService(ctx, busClient, loop, diagSvc, r.logger)
	if err := bridgeSvc.Start(); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	defer bridgeSvc.Close()
	loop.AddObserver(bridgeSvc)
	diagSvc.Register("bridge", func() error {
		if !bridgeSvc.Healthy() {
			return errors.New("bus subscriptions inactive")
		}
		return nil
	})

	if statuses, ok := diagSvc.Evaluate(); !ok {
		for name, status := range statuses {
			if status != "ok" {
				r.logger.Warn("diagnostic check failing",
					slog.String("check", name),
					slog.String("status", status))
			}
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/diagz", handleDiag(diagSvc))
	mux.HandleFunc("/statusz", handleStatus(loop))
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if r.cfg.Conversation.AutoStart {
		if err := loop.Start(ctx); err != nil {
			r.logger.Warn("conversation auto start failed", slog.String("error", err.Error()))
		}
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func handleDiag(svc *diag.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report := svc.Report()
		w.Header().Set("Content-Type", "application/json")
		if !report.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}

func handleStatus(loop *convo.Loop) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := loop.State()
		profiles := loop.Profiles()
		report := protocol.StatusReport{
			ConversationID: loop.ConversationID(),
			Active:         st.Active,
			Phase:          string(st.Phase),
			InputLanguage:  profiles.Input.Name,
			OutputLanguage: profiles.Output.Name,
			Messages:       loop.MessageCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}
}

// registerKeyProbes adds a credential check per hosted backend to the
// diagnostics report. Local and mock backends always pass.
func registerKeyProbes(svc *diag.Service, cfg config.Config) {
	svc.Register("inference", func() error {
		switch cfg.LLM.Mode {
		case "gemini", "openai":
			if cfg.LLM.APIKey == "" {
				return fmt.Errorf("%s api key missing", cfg.LLM.Mode)
			}
		}
		return nil
	})
	svc.Register("recognizer", func() error {
		switch cfg.Capture.Recognizer {
		case "google", "deepgram":
			if cfg.Capture.APIKey == "" {
				return fmt.Errorf("%s api key missing", cfg.Capture.Recognizer)
			}
		}
		return nil
	})
	svc.Register("synthesis", func() error {
		if cfg.TTS.Mode == "elevenlabs" && cfg.TTS.APIKey == "" {
			return errors.New("elevenlabs api key missing")
		}
		return nil
	})
}
