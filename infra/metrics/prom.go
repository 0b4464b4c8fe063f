// Package metrics provides the observability sinks: Prometheus counters
// for operators, InfluxDB for long-term telemetry, and a fan-out over both.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/minefleet/minefleet/core/metrics"
)

// PromSink records fleet events in Prometheus metrics.
type PromSink struct {
	ticks    *prometheus.HistogramVec
	frames   *prometheus.CounterVec
	commands *prometheus.CounterVec
	drops    *prometheus.CounterVec
	roster   prometheus.Gauge
}

// NewPromSink registers the fleet metrics on the default Prometheus
// registerer. The HTTP endpoint is started separately with StartServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ticks := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_tick_duration_seconds",
		Help:    "Execution time of one physics tick",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	}, []string{"truck_id"})
	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_frames_published_total",
		Help: "Telemetry frames published on the bus",
	}, []string{"truck_id", "class"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_commands_applied_total",
		Help: "Merged command windows applied by trucks",
	}, []string{"truck_id"})
	drops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_messages_dropped_total",
		Help: "Messages discarded because they could not be parsed or sent",
	}, []string{"reason"})
	roster := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_roster_size",
		Help: "Number of trucks known to the registry",
	})

	// Re-registration keeps the existing collector so two components in one
	// process share the same series.
	if err := reg.Register(ticks); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			ticks = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(frames); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			frames = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(commands); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			commands = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(drops); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			drops = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(roster); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			roster = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{ticks: ticks, frames: frames, commands: commands, drops: drops, roster: roster}, nil
}

func (s *PromSink) RecordTick(e coremetrics.TickEvent) error {
	s.ticks.WithLabelValues(strconv.Itoa(e.TruckID)).Observe(e.Duration.Seconds())
	return nil
}

func (s *PromSink) RecordFrame(e coremetrics.FrameEvent) error {
	s.frames.WithLabelValues(strconv.Itoa(e.TruckID), e.Class).Inc()
	return nil
}

func (s *PromSink) RecordCommand(e coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(strconv.Itoa(e.TruckID)).Inc()
	return nil
}

func (s *PromSink) RecordDrop(e coremetrics.DropEvent) error {
	s.drops.WithLabelValues(e.Reason).Inc()
	return nil
}

func (s *PromSink) RecordRoster(e coremetrics.RosterEvent) error {
	s.roster.Set(float64(e.Size))
	return nil
}
