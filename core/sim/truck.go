package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/minefleet/minefleet/core/kinematic"
	"github.com/minefleet/minefleet/core/model"
	"github.com/minefleet/minefleet/core/navigation"
	"github.com/minefleet/minefleet/core/telemetry"
)

// truck is the simulator-side representation of one vehicle: its physical
// state, operating mode and the command window buffered since the last
// tick. All mutation happens under mu; the tick loop and the subscribe
// callbacks are the only writers.
type truck struct {
	id int

	// lastTickAt is the wall clock instant of the last completed tick,
	// in unix nanoseconds. Read by the staleness monitor without the lock.
	lastTickAt atomic.Int64

	mu sync.Mutex

	state  model.TruckState
	params model.Params
	codec  *telemetry.Codec
	nav    *navigation.Controller

	automatic bool
	arrived   bool

	pending    telemetry.Command
	hasPending bool
	lastCmdAt  time.Time

	lastState      telemetry.StateFrame
	statePublished bool
	lastEcho       telemetry.Echo
	echoPublished  bool

	ticks uint64
}

func newTruck(spec TruckSpec, params model.Params, codec *telemetry.Codec, start time.Time) *truck {
	t := &truck{
		id:        spec.ID,
		state:     model.NewTruckState(spec.ID, spec.X, spec.Y),
		params:    params,
		codec:     codec,
		nav:       navigation.New(),
		lastCmdAt: start,
	}
	t.lastTickAt.Store(start.UnixNano())
	return t
}

// queueCommand buffers an inbound command for the next tick. Later fields
// overwrite earlier ones within the window.
func (t *truck) queueCommand(cmd telemetry.Command, now time.Time) {
	t.mu.Lock()
	t.pending = t.pending.Merge(cmd)
	t.hasPending = true
	t.lastCmdAt = now
	t.mu.Unlock()
}

// queueSetpoint installs a new waypoint for the autopilot.
func (t *truck) queueSetpoint(sp telemetry.Setpoint) {
	t.mu.Lock()
	t.nav.SetTarget(sp)
	t.mu.Unlock()
}

// faultActive aggregates the individual fault sources the same way the
// supervisory side does, so both ends agree without shared memory.
func (t *truck) faultActive() bool {
	return t.state.FaultElectrical || t.state.FaultHydraulic ||
		t.state.Temperature > model.TempCriticalThreshold
}

// tickResult carries what the tick loop must publish after a step.
type tickResult struct {
	sensors    *telemetry.SensorFrame
	state      *telemetry.StateFrame
	echo       *telemetry.Echo
	cmdApplied bool
	cmdFields  int
}

// step runs one physics tick: merge the buffered command window, derive the
// actuator inputs for the current mode, advance the kinematic model and
// decide what to publish.
func (t *truck) step(now time.Time, timeout time.Duration, sensorEveryN, stateEveryN int) tickResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res tickResult

	if t.hasPending {
		res.cmdApplied = true
		res.cmdFields = t.applyCommand(t.pending)
		t.pending = telemetry.Command{}
		t.hasPending = false
	} else if !t.automatic && now.Sub(t.lastCmdAt) > timeout && t.state.Acceleration != 0 {
		// Manual command stream went quiet: stop rather than run away.
		t.state.Acceleration = 0
	}

	switch {
	case t.faultActive():
		// A faulted truck never accelerates. The steering target is left
		// alone so it does not swing toward zero while stopped.
		t.state.Acceleration = 0
		t.nav.Disable(t.state.X, t.state.Y, t.state.Heading)
	case t.automatic:
		out := t.nav.Step(t.state.X, t.state.Y, t.state.Heading)
		t.state.Acceleration = out.Acceleration
		t.state.Steering = out.Steering
		t.arrived = out.Arrived
	default:
		t.nav.Disable(t.state.X, t.state.Y, t.state.Heading)
	}

	t.state = kinematic.Advance(t.state, t.params, 1)
	t.ticks++
	t.lastTickAt.Store(now.UnixNano())

	if sensorEveryN > 0 && t.ticks%uint64(sensorEveryN) == 0 {
		f := t.codec.EncodeSensors(t.state, now)
		res.sensors = &f
	}

	st := telemetry.StateFrame{Automatic: t.automatic, Fault: t.faultActive()}
	if !t.statePublished || st != t.lastState || (stateEveryN > 0 && t.ticks%uint64(stateEveryN) == 0) {
		t.lastState = st
		t.statePublished = true
		res.state = &st
	}

	if t.automatic {
		echo := telemetry.Echo{
			Acceleration: t.state.Acceleration,
			Steering:     t.state.Steering,
			Arrived:      t.arrived,
		}
		if !t.echoPublished || echo != t.lastEcho {
			t.lastEcho = echo
			t.echoPublished = true
			res.echo = &echo
		}
	} else {
		t.echoPublished = false
	}

	return res
}

// applyCommand merges one command window into the truck state and returns
// the number of fields it carried. Absolute fields are applied before the
// manual-drive vocabulary, so the manual fields win when both appear in the
// same window.
func (t *truck) applyCommand(cmd telemetry.Command) int {
	fields := 0

	if cmd.Rearm != nil && *cmd.Rearm {
		t.state.FaultElectrical = false
		t.state.FaultHydraulic = false
		fields++
	}
	if cmd.ManualMode != nil && *cmd.ManualMode {
		if t.automatic {
			t.nav.Disable(t.state.X, t.state.Y, t.state.Heading)
		}
		t.automatic = false
		t.arrived = false
		fields++
	}
	if cmd.AutoMode != nil && *cmd.AutoMode {
		// Mode promotion is refused while a fault is active.
		if !t.faultActive() {
			t.automatic = true
		}
		fields++
	}

	if cmd.Acceleration != nil {
		t.state.Acceleration = clampPercent(*cmd.Acceleration)
		fields++
	}
	if cmd.Steering != nil {
		t.state.Steering = *cmd.Steering
		fields++
	}

	if cmd.Accelerate != nil {
		t.state.Acceleration = clampPercent(*cmd.Accelerate)
		fields++
	}
	if cmd.SteerLeft != nil {
		t.state.Steering += *cmd.SteerLeft
		fields++
	}
	if cmd.SteerRight != nil {
		t.state.Steering -= *cmd.SteerRight
		fields++
	}

	if cmd.Arrived != nil {
		t.arrived = *cmd.Arrived
		fields++
	}
	return fields
}

func clampPercent(v int) int {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}

// snapshot returns a copy of the physical state.
func (t *truck) snapshot() model.TruckState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
