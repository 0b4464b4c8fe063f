// Package registry is the supervisory side's view of the fleet. It holds
// one record per truck built purely from observed bus traffic; it never
// shares memory with the simulator and never assumes a message it did not
// receive.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/minefleet/minefleet/core/bus"
	"github.com/minefleet/minefleet/core/logger"
	"github.com/minefleet/minefleet/core/metrics"
	"github.com/minefleet/minefleet/core/model"
	"github.com/minefleet/minefleet/core/telemetry"
	"github.com/minefleet/minefleet/internal/clock"
	"github.com/minefleet/minefleet/internal/eventbus"
	"github.com/minefleet/minefleet/internal/ring"
)

// trailDepth is how many position samples a record keeps.
const trailDepth = 20

// PositionSample is one observed position, as reported (noisy, integer).
type PositionSample struct {
	X    int
	Y    int
	Time time.Time
}

// TruckRecord is the last observed state of one truck. Every field comes
// from a received frame; Mode stays UNKNOWN until the first state frame.
type TruckRecord struct {
	ID int

	PositionX   int
	PositionY   int
	Angle       int
	Temperature int

	FaultElectrical bool
	FaultHydraulic  bool

	Mode       model.Mode
	FaultState bool

	Acceleration int
	Steering     int
	Arrived      bool

	LastUpdate time.Time
}

// HasAnyFault aggregates every fault source the record has seen.
func (r TruckRecord) HasAnyFault() bool {
	return r.FaultState || r.FaultElectrical || r.FaultHydraulic ||
		r.Temperature > model.TempCriticalThreshold
}

// TempWarning reports whether the last temperature reading is above the
// warning threshold.
func (r TruckRecord) TempWarning() bool {
	return r.Temperature > model.TempWarningThreshold
}

// Status is what an operator display shows for a truck.
type Status string

const (
	StatusFault    Status = "FAULT"
	StatusCritical Status = "CRITICAL"
	StatusWarning  Status = "WARNING"
	StatusAuto     Status = "AUTO"
	StatusManual   Status = "MANUAL"
	StatusUnknown  Status = "UNKNOWN"
)

// DisplayStatus picks one status by priority: reported faults beat thermal
// conditions, thermal conditions beat the operating mode.
func (r TruckRecord) DisplayStatus() Status {
	switch {
	case r.FaultState || r.FaultElectrical || r.FaultHydraulic:
		return StatusFault
	case r.Temperature > model.TempCriticalThreshold:
		return StatusCritical
	case r.Temperature > model.TempWarningThreshold:
		return StatusWarning
	case r.Mode == model.ModeAuto:
		return StatusAuto
	case r.Mode == model.ModeManual:
		return StatusManual
	default:
		return StatusUnknown
	}
}

// RosterChange is published when a truck id is seen for the first time.
type RosterChange struct {
	TruckID int
	Size    int
}

// FleetStats are derived aggregates over the whole roster.
type FleetStats struct {
	Trucks     int
	Faulted    int
	AverageAge time.Duration
}

type entry struct {
	rec   TruckRecord
	trail *ring.Buffer[PositionSample]
}

// Registry tracks every truck heard on the bus. Records appear lazily on
// the first message carrying a new id; nothing is ever removed.
type Registry struct {
	clk  clock.Clock
	log  logger.Logger
	sink metrics.Sink

	mu      sync.RWMutex
	entries map[int]*entry
	roster  *eventbus.Bus[RosterChange]
}

// New creates an empty Registry. A nil sink disables metrics.
func New(clk clock.Clock, log logger.Logger, sink metrics.Sink) *Registry {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Registry{
		clk:     clk,
		log:     log,
		sink:    sink,
		entries: make(map[int]*entry),
		roster:  eventbus.New[RosterChange](),
	}
}

// OnMessage is the bus handler. It demuxes by message class and updates the
// record for the topic's truck id. A payload that does not parse discards
// that message only; the record keeps its previous values.
func (r *Registry) OnMessage(topic string, payload []byte) {
	id, class, err := bus.ParseTopic(topic)
	if err != nil {
		r.drop(topic, "topic", err)
		return
	}

	switch class {
	case bus.ClassSensors:
		f, err := telemetry.DecodeSensors(payload)
		if err != nil {
			r.drop(topic, "decode", err)
			return
		}
		r.applySensors(id, f)
	case bus.ClassState:
		f, err := telemetry.DecodeState(payload)
		if err != nil {
			r.drop(topic, "decode", err)
			return
		}
		r.applyState(id, f)
	case bus.ClassCommands:
		cmd, err := telemetry.DecodeCommand(payload)
		if err != nil {
			r.drop(topic, "decode", err)
			return
		}
		r.applyCommand(id, cmd)
	default:
		// Setpoints are supervisor-originated; the registry has nothing to
		// learn from its own output.
	}
}

func (r *Registry) drop(topic, reason string, err error) {
	r.log.Warnf("registry: dropped message on %s: %v", topic, err)
	_ = r.sink.RecordDrop(metrics.DropEvent{Topic: topic, Reason: reason, Time: r.clk.Now()})
}

// ensure returns the entry for id, creating it and raising a roster event
// on first sight. Caller holds r.mu.
func (r *Registry) ensure(id int) *entry {
	e, ok := r.entries[id]
	if ok {
		return e
	}
	e = &entry{
		rec:   TruckRecord{ID: id, Mode: model.ModeUnknown},
		trail: ring.New[PositionSample](trailDepth),
	}
	r.entries[id] = e
	size := len(r.entries)
	r.log.Infof("registry: new truck %d (roster %d)", id, size)
	r.roster.Publish(RosterChange{TruckID: id, Size: size})
	_ = r.sink.RecordRoster(metrics.RosterEvent{Size: size, Time: r.clk.Now()})
	return e
}

func (r *Registry) applySensors(id int, f telemetry.SensorFrame) {
	now := r.clk.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.ensure(id)
	e.rec.PositionX = f.PositionX
	e.rec.PositionY = f.PositionY
	e.rec.Angle = f.AngleX
	e.rec.Temperature = f.Temperature
	e.rec.FaultElectrical = f.FaultElectrical
	e.rec.FaultHydraulic = f.FaultHydraulic
	e.rec.LastUpdate = now
	// A parked truck keeps reporting the same position; pushing every
	// frame would flush the movement history out of the trail.
	if last, ok := e.trail.Latest(); ok && last.X == f.PositionX && last.Y == f.PositionY {
		return
	}
	e.trail.Push(PositionSample{X: f.PositionX, Y: f.PositionY, Time: now})
}

func (r *Registry) applyState(id int, f telemetry.StateFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.ensure(id)
	if f.Automatic {
		e.rec.Mode = model.ModeAuto
	} else {
		e.rec.Mode = model.ModeManual
	}
	e.rec.FaultState = f.Fault
	e.rec.LastUpdate = r.clk.Now()
}

// applyCommand records the last observed actuator values. Both operator
// commands and autopilot echoes land here; pointer fields that are absent
// leave the previous observation in place.
func (r *Registry) applyCommand(id int, cmd telemetry.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.ensure(id)
	if cmd.Acceleration != nil {
		e.rec.Acceleration = *cmd.Acceleration
	}
	if cmd.Accelerate != nil {
		e.rec.Acceleration = *cmd.Accelerate
	}
	if cmd.Steering != nil {
		e.rec.Steering = *cmd.Steering
	}
	if cmd.Arrived != nil {
		e.rec.Arrived = *cmd.Arrived
	}
	e.rec.LastUpdate = r.clk.Now()
}

// Record returns a copy of the record for id.
func (r *Registry) Record(id int) (TruckRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return TruckRecord{}, false
	}
	return e.rec, true
}

// Records returns every record sorted by truck id.
func (r *Registry) Records() []TruckRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TruckRecord, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the known truck ids sorted ascending.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Trail returns the recorded position history for id, oldest first.
func (r *Registry) Trail(id int) []PositionSample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	return e.trail.Snapshot()
}

// Staleness reports how long ago the record for id was last updated. It is
// advisory: a stale record is flagged, never evicted.
func (r *Registry) Staleness(id int) (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return 0, false
	}
	return r.clk.Now().Sub(e.rec.LastUpdate), true
}

// Stats derives fleet-wide aggregates from the roster.
func (r *Registry) Stats() FleetStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := FleetStats{Trucks: len(r.entries)}
	if s.Trucks == 0 {
		return s
	}
	now := r.clk.Now()
	var total time.Duration
	for _, e := range r.entries {
		if e.rec.HasAnyFault() {
			s.Faulted++
		}
		total += now.Sub(e.rec.LastUpdate)
	}
	s.AverageAge = total / time.Duration(s.Trucks)
	return s
}

// RosterChanges subscribes to roster events. The caller must drain the
// channel or miss events; unsubscribe with IgnoreRosterChanges.
func (r *Registry) RosterChanges() <-chan RosterChange {
	return r.roster.Subscribe()
}

// IgnoreRosterChanges removes a subscription made with RosterChanges.
func (r *Registry) IgnoreRosterChanges(ch <-chan RosterChange) {
	r.roster.Unsubscribe(ch)
}

// Close shuts the roster event bus down.
func (r *Registry) Close() {
	r.roster.Close()
}
