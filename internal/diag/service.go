package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/parleylabs/parley-core/internal/protocol"
)

// Probe checks one component and returns nil when it is serviceable.
type Probe func() error

// Service aggregates component probes into the diagnostics surface exposed
// on the bus and over HTTP.
type Service struct {
	runtimeName string
	version     string
	log         *slog.Logger

	mu     sync.RWMutex
	probes map[string]Probe

	meter        metric.Meter
	healthyGauge metric.Int64ObservableGauge
	totalGauge   metric.Int64ObservableGauge
}

func NewService(runtimeName, version string, log *slog.Logger) *Service {
	s := &Service{
		runtimeName: runtimeName,
		version:     version,
		log:         log.With(slog.String("component", "diag")),
		probes:      make(map[string]Probe),
		meter:       otel.Meter("github.com/parleylabs/parley-core/runtime"),
	}
	if err := s.initMetrics(); err != nil {
		s.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return s
}

// Register adds a named component probe. Probes must be safe for concurrent
// use; they run on every evaluation.
func (s *Service) Register(name string, probe Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[name] = probe
}

// Evaluate runs every probe and reports per-component status.
func (s *Service) Evaluate() (map[string]string, bool) {
	s.mu.RLock()
	probes := make(map[string]Probe, len(s.probes))
	for name, probe := range s.probes {
		probes[name] = probe
	}
	s.mu.RUnlock()

	statuses := make(map[string]string, len(probes))
	healthy := true
	for name, probe := range probes {
		if err := probe(); err != nil {
			statuses[name] = err.Error()
			healthy = false
			continue
		}
		statuses[name] = "ok"
	}
	return statuses, healthy
}

func (s *Service) Healthy() bool {
	_, healthy := s.Evaluate()
	return healthy
}

// Report assembles the diagnostics payload.
func (s *Service) Report() protocol.DiagReport {
	statuses, healthy := s.Evaluate()
	return protocol.DiagReport{
		RuntimeName: s.runtimeName,
		Version:     s.version,
		Healthy:     healthy,
		Components:  statuses,
		Timestamp:   time.Now().UTC(),
	}
}

func (s *Service) initMetrics() error {
	if s.meter == nil {
		return nil
	}
	healthyGauge, err := s.meter.Int64ObservableGauge("parley.components.healthy", metric.WithDescription("Number of healthy components"))
	if err != nil {
		return err
	}
	totalGauge, err := s.meter.Int64ObservableGauge("parley.components.total", metric.WithDescription("Number of registered components"))
	if err != nil {
		return err
	}
	s.healthyGauge = healthyGauge
	s.totalGauge = totalGauge
	_, err = s.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		statuses, _ := s.Evaluate()
		var healthyCount int64
		for _, status := range statuses {
			if status == "ok" {
				healthyCount++
			}
		}
		obs.ObserveInt64(healthyGauge, healthyCount)
		obs.ObserveInt64(totalGauge, int64(len(statuses)))
		return nil
	}, healthyGauge, totalGauge)
	return err
}
