// Package metrics defines the observability events the simulator and the
// supervisory service emit, and the sink interface implementations under
// infra/metrics satisfy.
package metrics

import "time"

// TickEvent is one completed physics tick of one truck.
type TickEvent struct {
	TruckID  int
	Duration time.Duration
	Time     time.Time
}

// FrameEvent is one telemetry frame published on the bus.
type FrameEvent struct {
	TruckID int
	Class   string
	Time    time.Time
}

// CommandEvent is one merged command window applied by a truck.
type CommandEvent struct {
	TruckID int
	Fields  int
	Time    time.Time
}

// DropEvent is a message discarded because it could not be parsed or
// published.
type DropEvent struct {
	Topic  string
	Reason string
	Time   time.Time
}

// RosterEvent is a change in the number of trucks known to the registry.
type RosterEvent struct {
	Size int
	Time time.Time
}

// Sink records fleet events for observability purposes. Implementations
// must be safe for concurrent use.
type Sink interface {
	RecordTick(TickEvent) error
	RecordFrame(FrameEvent) error
	RecordCommand(CommandEvent) error
	RecordDrop(DropEvent) error
	RecordRoster(RosterEvent) error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RecordTick(TickEvent) error       { return nil }
func (NopSink) RecordFrame(FrameEvent) error     { return nil }
func (NopSink) RecordCommand(CommandEvent) error { return nil }
func (NopSink) RecordDrop(DropEvent) error       { return nil }
func (NopSink) RecordRoster(RosterEvent) error   { return nil }
