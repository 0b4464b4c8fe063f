// Package supervisor implements the operator-facing control side: one
// selected truck at a time, waypoint dispatch, mode and rearm commands,
// manual driving and the heartbeat that keeps a manually driven truck from
// decaying to a stop between key presses.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/minefleet/minefleet/core/bus"
	"github.com/minefleet/minefleet/core/logger"
	"github.com/minefleet/minefleet/core/model"
	"github.com/minefleet/minefleet/core/registry"
	"github.com/minefleet/minefleet/core/telemetry"
	"github.com/minefleet/minefleet/internal/clock"
)

const (
	// defaultCruiseSpeed is sent with every waypoint and seeds the
	// manual-drive target speed.
	defaultCruiseSpeed = 50
	// speedStep is the increment of one speed-up or slow-down input.
	speedStep = 5
	// steerDelta is the per-input steering nudge in degrees.
	steerDelta = 5

	// heartbeatIdle is how long the command stream may be quiet before the
	// heartbeat starts refreshing it. It must stay well under the
	// simulator's command timeout.
	heartbeatIdle = 300 * time.Millisecond
	// heartbeatPeriod is the refresh cadence once idle.
	heartbeatPeriod = 200 * time.Millisecond
)

// ErrNoSelection is returned by operations that need a selected truck.
var ErrNoSelection = errors.New("supervisor: no truck selected")

// Controller issues commands for the currently selected truck. All methods
// are safe for concurrent use; the heartbeat runs alongside operator input.
type Controller struct {
	bus bus.Bus
	reg *registry.Registry
	clk clock.Clock
	log logger.Logger

	mu          sync.Mutex
	selected    int
	targetSpeed int
	// lastInputAt is the last operator-originated command per truck.
	// Heartbeat refreshes do not count as input.
	lastInputAt map[int]time.Time
}

// New creates a Controller with no selection and the default cruise speed.
func New(b bus.Bus, reg *registry.Registry, clk clock.Clock, log logger.Logger) *Controller {
	return &Controller{
		bus:         b,
		reg:         reg,
		clk:         clk,
		log:         log,
		targetSpeed: defaultCruiseSpeed,
		lastInputAt: make(map[int]time.Time),
	}
}

// Select makes id the target of subsequent commands.
func (c *Controller) Select(id int) {
	c.mu.Lock()
	c.selected = id
	c.mu.Unlock()
	c.log.Infof("selected truck %d", id)
}

// Selected returns the currently selected truck id, zero when none.
func (c *Controller) Selected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// TargetSpeed returns the speed used for manual driving and the heartbeat.
func (c *Controller) TargetSpeed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetSpeed
}

// SendWaypoint validates the raw coordinate input and publishes a one-shot
// setpoint for the selected truck. Waypoints always go out at the default
// cruise speed; the operator's manual-drive speed does not leak into them.
func (c *Controller) SendWaypoint(xs, ys string) error {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return fmt.Errorf("supervisor: bad x coordinate %q: %w", xs, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return fmt.Errorf("supervisor: bad y coordinate %q: %w", ys, err)
	}

	c.mu.Lock()
	id := c.selected
	c.mu.Unlock()
	if id == 0 {
		return ErrNoSelection
	}

	sp := telemetry.Setpoint{TargetX: x, TargetY: y, TargetSpeed: defaultCruiseSpeed}
	payload, err := telemetry.MarshalSetpoint(sp)
	if err != nil {
		return fmt.Errorf("supervisor: encode setpoint: %w", err)
	}
	if err := c.bus.Publish(bus.SetpointTopic(id), payload); err != nil {
		return fmt.Errorf("supervisor: send setpoint: %w", err)
	}
	c.log.Infof("truck %d: waypoint (%d,%d) at speed %d", id, x, y, defaultCruiseSpeed)
	return nil
}

// SetMode switches the selected truck between automatic and manual. The
// two flags are mutually exclusive on the wire.
func (c *Controller) SetMode(auto bool) error {
	cmd := telemetry.Command{}
	if auto {
		cmd.AutoMode = telemetry.Bool(true)
	} else {
		cmd.ManualMode = telemetry.Bool(true)
	}
	return c.send(cmd)
}

// Rearm asks the selected truck to clear its latched faults.
func (c *Controller) Rearm() error {
	return c.send(telemetry.Command{Rearm: telemetry.Bool(true)})
}

// SpeedUp raises the target speed one step and drives the selected truck
// at it.
func (c *Controller) SpeedUp() error {
	return c.adjustSpeed(speedStep)
}

// SlowDown lowers the target speed one step; negative values drive in
// reverse.
func (c *Controller) SlowDown() error {
	return c.adjustSpeed(-speedStep)
}

func (c *Controller) adjustSpeed(delta int) error {
	c.mu.Lock()
	c.targetSpeed += delta
	if c.targetSpeed > 100 {
		c.targetSpeed = 100
	}
	if c.targetSpeed < -100 {
		c.targetSpeed = -100
	}
	speed := c.targetSpeed
	c.mu.Unlock()
	return c.send(telemetry.Command{Accelerate: telemetry.Int(speed)})
}

// SteerLeft nudges the heading left while holding the current speed.
func (c *Controller) SteerLeft() error {
	return c.send(telemetry.Command{
		SteerLeft:  telemetry.Int(steerDelta),
		Accelerate: telemetry.Int(c.TargetSpeed()),
	})
}

// SteerRight nudges the heading right while holding the current speed.
func (c *Controller) SteerRight() error {
	return c.send(telemetry.Command{
		SteerRight: telemetry.Int(steerDelta),
		Accelerate: telemetry.Int(c.TargetSpeed()),
	})
}

// send publishes an operator command to the selected truck and stamps the
// input clock the heartbeat watches.
func (c *Controller) send(cmd telemetry.Command) error {
	c.mu.Lock()
	id := c.selected
	c.mu.Unlock()
	if id == 0 {
		return ErrNoSelection
	}

	payload, err := telemetry.MarshalCommand(cmd)
	if err != nil {
		return fmt.Errorf("supervisor: encode command: %w", err)
	}
	if err := c.bus.Publish(bus.CommandsTopic(id), payload); err != nil {
		return fmt.Errorf("supervisor: send command: %w", err)
	}

	c.mu.Lock()
	c.lastInputAt[id] = c.clk.Now()
	c.mu.Unlock()
	return nil
}

// RunHeartbeat keeps the selected truck's command stream alive until the
// context is cancelled.
func (c *Controller) RunHeartbeat(ctx context.Context) error {
	ticker := c.clk.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			c.heartbeat(now)
		}
	}
}

// heartbeat refreshes the acceleration command when the operator has gone
// quiet on a manually driven truck. The steering command is not refreshed;
// the truck holds its last steering target on its own.
func (c *Controller) heartbeat(now time.Time) {
	c.mu.Lock()
	id := c.selected
	speed := c.targetSpeed
	last, seen := c.lastInputAt[id]
	c.mu.Unlock()

	if id == 0 || !seen {
		return
	}
	rec, ok := c.reg.Record(id)
	if !ok || rec.Mode != model.ModeManual {
		return
	}
	if now.Sub(last) <= heartbeatIdle {
		return
	}

	cmd := telemetry.Command{Accelerate: telemetry.Int(speed)}
	payload, err := telemetry.MarshalCommand(cmd)
	if err != nil {
		return
	}
	if err := c.bus.Publish(bus.CommandsTopic(id), payload); err != nil {
		c.log.Warnf("heartbeat for truck %d failed: %v", id, err)
	}
}
