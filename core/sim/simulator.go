// Package sim runs the truck fleet: one goroutine per truck driving a
// fixed-period tick loop, fed by command and setpoint subscriptions on the
// bus and publishing sensor, state and echo frames back onto it.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/minefleet/minefleet/core/bus"
	"github.com/minefleet/minefleet/core/logger"
	"github.com/minefleet/minefleet/core/metrics"
	"github.com/minefleet/minefleet/core/model"
	"github.com/minefleet/minefleet/core/perf"
	"github.com/minefleet/minefleet/core/telemetry"
	"github.com/minefleet/minefleet/internal/clock"
)

// temperature test bump applied by BumpTemperature.
const tempBumpStep = 20.0

// staleness monitor cadence and threshold, in tick periods.
const (
	staleCheckEvery = 30
	staleAfterTicks = 5
)

// Simulator owns the fleet. Trucks are created once at construction; the
// roster never changes at runtime.
type Simulator struct {
	cfg  Config
	bus  bus.Bus
	clk  clock.Clock
	log  logger.Logger
	sink metrics.Sink
	perf *perf.Monitor

	trucks map[int]*truck
	paused atomic.Bool
}

// New builds a simulator from a validated config. A nil sink disables
// metrics; a nil rng seeds the sensor noise from the clock.
func New(cfg Config, b bus.Bus, clk clock.Clock, log logger.Logger, sink metrics.Sink, rng *rand.Rand) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}

	s := &Simulator{
		cfg:    cfg,
		bus:    b,
		clk:    clk,
		log:    log,
		sink:   sink,
		perf:   perf.New(log),
		trucks: make(map[int]*truck, len(cfg.Trucks)),
	}

	now := clk.Now()
	for _, spec := range cfg.Trucks {
		// Each truck gets its own random source; the tick loops run on
		// separate goroutines and rand.Rand is not safe to share.
		var truckRng *rand.Rand
		if rng != nil {
			truckRng = rand.New(rand.NewSource(rng.Int63()))
		}
		codec := telemetry.NewCodec(cfg.Noise, truckRng)
		s.trucks[spec.ID] = newTruck(spec, cfg.Params, codec, now)
		s.perf.Register(tickTask(spec.ID), cfg.TickPeriod())
	}
	return s, nil
}

func tickTask(id int) string { return fmt.Sprintf("truck-%d-tick", id) }

// Start subscribes the per-truck inbound topics and runs the tick loops
// until the context is cancelled.
func (s *Simulator) Start(ctx context.Context) error {
	for id, t := range s.trucks {
		if err := s.bus.Subscribe(bus.CommandsTopic(id), s.commandHandler(t)); err != nil {
			return fmt.Errorf("sim: subscribe commands for truck %d: %w", id, err)
		}
		if err := s.bus.Subscribe(bus.SetpointTopic(id), s.setpointHandler(t)); err != nil {
			return fmt.Errorf("sim: subscribe setpoint for truck %d: %w", id, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.trucks {
		t := t
		g.Go(func() error { return s.run(ctx, t) })
	}
	g.Go(func() error { return s.monitorStaleness(ctx) })

	s.log.Infof("simulator started: %d trucks, tick %s", len(s.trucks), s.cfg.TickPeriod())
	return g.Wait()
}

func (s *Simulator) run(ctx context.Context, t *truck) error {
	ticker := s.clk.NewTicker(s.cfg.TickPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			if s.paused.Load() {
				continue
			}
			s.tick(t, now)
		}
	}
}

func (s *Simulator) tick(t *truck, now time.Time) {
	started := time.Now()
	res := t.step(now, s.cfg.CommandTimeout(), s.cfg.SensorEveryN, s.cfg.StateEveryN)
	elapsed := time.Since(started)

	s.perf.Observe(tickTask(t.id), elapsed)
	_ = s.sink.RecordTick(metrics.TickEvent{TruckID: t.id, Duration: elapsed, Time: now})

	if res.cmdApplied {
		_ = s.sink.RecordCommand(metrics.CommandEvent{TruckID: t.id, Fields: res.cmdFields, Time: now})
	}

	if res.sensors != nil {
		if payload, err := telemetry.MarshalSensors(*res.sensors); err == nil {
			s.publish(bus.SensorsTopic(t.id), payload, t.id, string(bus.ClassSensors), now)
		}
	}
	if res.state != nil {
		if payload, err := telemetry.MarshalState(*res.state); err == nil {
			s.publish(bus.StateTopic(t.id), payload, t.id, string(bus.ClassState), now)
		}
	}
	if res.echo != nil {
		if payload, err := telemetry.MarshalEcho(*res.echo); err == nil {
			s.publish(bus.CommandsTopic(t.id), payload, t.id, string(bus.ClassCommands), now)
		}
	}
}

func (s *Simulator) publish(topic string, payload []byte, id int, class string, now time.Time) {
	if err := s.bus.Publish(topic, payload); err != nil {
		s.log.Warnf("publish %s failed: %v", topic, err)
		_ = s.sink.RecordDrop(metrics.DropEvent{Topic: topic, Reason: "publish", Time: now})
		return
	}
	_ = s.sink.RecordFrame(metrics.FrameEvent{TruckID: id, Class: class, Time: now})
}

// commandHandler decodes a command payload and buffers it for the next
// tick. A truck driving autonomously echoes its actuator values back on
// the same topic; those loop back here and merge as a no-op.
func (s *Simulator) commandHandler(t *truck) bus.Handler {
	return func(topic string, payload []byte) {
		cmd, err := telemetry.DecodeCommand(payload)
		if err != nil {
			s.log.Warnf("truck %d: bad command payload: %v", t.id, err)
			_ = s.sink.RecordDrop(metrics.DropEvent{Topic: topic, Reason: "decode", Time: s.clk.Now()})
			return
		}
		// A command with no recognized field carries nothing; queuing it
		// would only reset the manual dead-man timeout.
		if cmd.IsEmpty() {
			_ = s.sink.RecordDrop(metrics.DropEvent{Topic: topic, Reason: "empty", Time: s.clk.Now()})
			return
		}
		t.queueCommand(cmd, s.clk.Now())
	}
}

func (s *Simulator) setpointHandler(t *truck) bus.Handler {
	return func(topic string, payload []byte) {
		sp, err := telemetry.DecodeSetpoint(payload)
		if err != nil {
			s.log.Warnf("truck %d: bad setpoint payload: %v", t.id, err)
			_ = s.sink.RecordDrop(metrics.DropEvent{Topic: topic, Reason: "decode", Time: s.clk.Now()})
			return
		}
		t.queueSetpoint(sp)
		s.log.Infof("truck %d: setpoint (%d,%d) speed %d", t.id, sp.TargetX, sp.TargetY, sp.TargetSpeed)
	}
}

// monitorStaleness logs trucks whose tick loop has gone quiet. Advisory
// only; nothing is restarted.
func (s *Simulator) monitorStaleness(ctx context.Context) error {
	period := s.cfg.TickPeriod()
	ticker := s.clk.NewTicker(period * staleCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			if s.paused.Load() {
				continue
			}
			for _, t := range s.trucks {
				last := time.Unix(0, t.lastTickAt.Load())
				if age := now.Sub(last); age > period*staleAfterTicks {
					s.log.Warnf("truck %d: tick loop stale for %s", t.id, age)
				}
			}
		}
	}
}

// Pause stops the physics without tearing anything down. Inbound commands
// and setpoints keep buffering and apply on the first tick after Resume.
func (s *Simulator) Pause() {
	if s.paused.CompareAndSwap(false, true) {
		s.log.Infof("simulation paused")
	}
}

// Resume restarts the physics.
func (s *Simulator) Resume() {
	if s.paused.CompareAndSwap(true, false) {
		s.log.Infof("simulation resumed")
	}
}

// Paused reports whether ticking is suspended.
func (s *Simulator) Paused() bool { return s.paused.Load() }

// ToggleElectricalFault flips the electrical fault flag of one truck and
// returns the new value.
func (s *Simulator) ToggleElectricalFault(id int) (bool, error) {
	t, ok := s.trucks[id]
	if !ok {
		return false, fmt.Errorf("sim: unknown truck %d", id)
	}
	t.mu.Lock()
	t.state.FaultElectrical = !t.state.FaultElectrical
	v := t.state.FaultElectrical
	t.mu.Unlock()
	s.log.Infof("truck %d: electrical fault %v", id, v)
	return v, nil
}

// ToggleHydraulicFault flips the hydraulic fault flag of one truck and
// returns the new value.
func (s *Simulator) ToggleHydraulicFault(id int) (bool, error) {
	t, ok := s.trucks[id]
	if !ok {
		return false, fmt.Errorf("sim: unknown truck %d", id)
	}
	t.mu.Lock()
	t.state.FaultHydraulic = !t.state.FaultHydraulic
	v := t.state.FaultHydraulic
	t.mu.Unlock()
	s.log.Infof("truck %d: hydraulic fault %v", id, v)
	return v, nil
}

// BumpTemperature raises one truck's temperature by a fixed step, clamped
// to the model maximum. Test aid for exercising the thermal fault path.
func (s *Simulator) BumpTemperature(id int) (float64, error) {
	t, ok := s.trucks[id]
	if !ok {
		return 0, fmt.Errorf("sim: unknown truck %d", id)
	}
	t.mu.Lock()
	t.state.Temperature += tempBumpStep
	if t.state.Temperature > t.params.TempMax {
		t.state.Temperature = t.params.TempMax
	}
	v := t.state.Temperature
	t.mu.Unlock()
	s.log.Infof("truck %d: temperature bumped to %.1f", id, v)
	return v, nil
}

// Snapshot returns a copy of one truck's physical state.
func (s *Simulator) Snapshot(id int) (model.TruckState, bool) {
	t, ok := s.trucks[id]
	if !ok {
		return model.TruckState{}, false
	}
	return t.snapshot(), true
}

// Snapshots returns every truck's state sorted by id.
func (s *Simulator) Snapshots() []model.TruckState {
	out := make([]model.TruckState, 0, len(s.trucks))
	for _, t := range s.trucks {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Perf exposes the tick execution statistics.
func (s *Simulator) Perf() *perf.Monitor { return s.perf }
