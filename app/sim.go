package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/minefleet/minefleet/config"
	"github.com/minefleet/minefleet/core/bus"
	"github.com/minefleet/minefleet/core/logger"
	"github.com/minefleet/minefleet/core/sim"
	infralogger "github.com/minefleet/minefleet/infra/logger"
	"github.com/minefleet/minefleet/infra/metrics"
	"github.com/minefleet/minefleet/infra/mqtt"
	"github.com/minefleet/minefleet/internal/clock"
)

// perfReportEvery is how often the tick statistics are logged.
const perfReportEvery = 30 * time.Second

// SimService runs the fleet simulator against the broker.
type SimService struct {
	cfg *config.Config
	bus bus.Bus
	sim *sim.Simulator
	log logger.Logger
}

// NewSim builds the simulator service from the configuration.
func NewSim(cfg *config.Config) (*SimService, error) {
	log := infralogger.New("sim")

	sink, err := metrics.NewSink(cfg.Metrics, infralogger.New("metrics"))
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	b, err := mqtt.NewPahoBus(cfg.MQTT, infralogger.New("mqtt"))
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	s, err := sim.New(cfg.Sim, b, clock.Real{}, log, sink, nil)
	if err != nil {
		return nil, err
	}
	return &SimService{cfg: cfg, bus: b, sim: s, log: log}, nil
}

// Simulator exposes the running fleet for fault injection and snapshots.
func (s *SimService) Simulator() *sim.Simulator { return s.sim }

// Run drives the fleet until the context is cancelled.
func (s *SimService) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.sim.Start(ctx) })
	g.Go(func() error { return s.reportPerf(ctx) })
	if s.cfg.Metrics.PrometheusEnabled {
		g.Go(func() error {
			return metrics.StartServer(ctx, s.cfg.Metrics.PrometheusAddr, s.log)
		})
	}
	return g.Wait()
}

// reportPerf logs tick execution statistics at a slow cadence.
func (s *SimService) reportPerf(ctx context.Context) error {
	ticker := time.NewTicker(perfReportEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, st := range s.sim.Perf().All() {
				s.log.Debugw("tick stats", map[string]any{
					"task":            st.Name,
					"count":           st.Count,
					"mean_us":         st.Mean.Microseconds(),
					"p99_us":          st.P99.Microseconds(),
					"deadline_misses": st.DeadlineMisses,
				})
			}
		}
	}
}

// Close releases the transport connection.
func (s *SimService) Close() {
	s.bus.Close()
}
