// Package app wires the configured transports, sinks and domain components
// into runnable services, one per subcommand.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/minefleet/minefleet/config"
	"github.com/minefleet/minefleet/core/bus"
	"github.com/minefleet/minefleet/core/logger"
	"github.com/minefleet/minefleet/core/registry"
	"github.com/minefleet/minefleet/core/supervisor"
	infralogger "github.com/minefleet/minefleet/infra/logger"
	"github.com/minefleet/minefleet/infra/metrics"
	"github.com/minefleet/minefleet/infra/mqtt"
	"github.com/minefleet/minefleet/internal/clock"
)

// staleAfter is the observation age past which a truck is logged as stale.
const staleAfter = 2 * time.Second

// SupervisorService runs the supervisory side: the registry fed by
// wildcard subscriptions, the controller and its heartbeat.
type SupervisorService struct {
	cfg *config.Config
	bus bus.Bus
	reg *registry.Registry
	ctl *supervisor.Controller
	log logger.Logger
}

// NewSupervisor builds the supervisory service from the configuration.
func NewSupervisor(cfg *config.Config) (*SupervisorService, error) {
	log := infralogger.New("supervisor")

	sink, err := metrics.NewSink(cfg.Metrics, infralogger.New("metrics"))
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	b, err := mqtt.NewPahoBus(cfg.MQTT, infralogger.New("mqtt"))
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	clk := clock.Real{}
	reg := registry.New(clk, infralogger.New("registry"), sink)
	ctl := supervisor.New(b, reg, clk, log)

	return &SupervisorService{cfg: cfg, bus: b, reg: reg, ctl: ctl, log: log}, nil
}

// Controller exposes the operator command surface.
func (s *SupervisorService) Controller() *supervisor.Controller { return s.ctl }

// Registry exposes the observed fleet records.
func (s *SupervisorService) Registry() *registry.Registry { return s.reg }

// Run subscribes the telemetry topics and blocks until the context is
// cancelled.
func (s *SupervisorService) Run(ctx context.Context) error {
	for _, topic := range []string{bus.AllSensors, bus.AllState, bus.AllCommands} {
		if err := s.bus.Subscribe(topic, s.reg.OnMessage); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ctl.RunHeartbeat(ctx) })
	g.Go(func() error { return s.watchRoster(ctx) })
	g.Go(func() error { return s.watchStaleness(ctx) })
	if s.cfg.Metrics.PrometheusEnabled {
		g.Go(func() error {
			return metrics.StartServer(ctx, s.cfg.Metrics.PrometheusAddr, s.log)
		})
	}

	s.log.Infof("supervisory service running")
	return g.Wait()
}

// watchRoster logs roster growth and selects the first truck heard so the
// heartbeat has something to defend before an operator picks one.
func (s *SupervisorService) watchRoster(ctx context.Context) error {
	events := s.reg.RosterChanges()
	defer s.reg.IgnoreRosterChanges(events)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.log.Infof("fleet roster grew to %d (truck %d)", ev.Size, ev.TruckID)
			if s.ctl.Selected() == 0 {
				s.ctl.Select(ev.TruckID)
			}
		}
	}
}

// watchStaleness periodically flags trucks that have gone quiet. Advisory
// only; records are never evicted.
func (s *SupervisorService) watchStaleness(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, id := range s.reg.IDs() {
				if age, ok := s.reg.Staleness(id); ok && age > staleAfter {
					s.log.Warnf("truck %d silent for %s", id, age.Round(time.Millisecond))
				}
			}
			stats := s.reg.Stats()
			s.log.Debugw("fleet stats", map[string]any{
				"trucks":     stats.Trucks,
				"faulted":    stats.Faulted,
				"avg_age_ms": stats.AverageAge.Milliseconds(),
			})
		}
	}
}

// Close releases the transport and the roster event bus.
func (s *SupervisorService) Close() {
	s.reg.Close()
	s.bus.Close()
}
