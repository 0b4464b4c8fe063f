// Package navigation implements the waypoint controller a truck runs while
// in automatic mode: a staged speed ramp toward the target, a proportional
// heading controller and arrival detection with overshoot cut-off.
package navigation

import (
	"math"

	"github.com/minefleet/minefleet/core/kinematic"
	"github.com/minefleet/minefleet/core/telemetry"
)

const (
	arrivalRadius      = 5.0
	alignmentThreshold = 5.0
	decelDistance      = 60.0
	maxAcceleration    = 60
	headingGain        = 0.8
	steeringLimit      = 80
)

// Output is what the controller wants the actuators to do this tick.
type Output struct {
	Acceleration int
	Steering     int
	Arrived      bool
}

// Controller drives one truck toward its current setpoint. It is not safe
// for concurrent use; the owning simulator calls it from its tick loop only.
type Controller struct {
	target    telemetry.Setpoint
	hasTarget bool
	prevDist  float64
	out       Output
}

// New creates an idle controller with no target.
func New() *Controller {
	return &Controller{prevDist: math.MaxFloat64}
}

// SetTarget installs a new one-shot waypoint. A genuinely new position
// resets the arrival latch; re-sending the same waypoint does not.
func (c *Controller) SetTarget(sp telemetry.Setpoint) {
	moved := sp.TargetX != c.target.TargetX || sp.TargetY != c.target.TargetY
	c.target = sp
	c.hasTarget = true
	if moved {
		c.prevDist = math.MaxFloat64
		c.out.Arrived = false
	}
}

// Disable is called every tick the controller must not act (manual mode or
// an active fault). The target tracks the current position so that a later
// switch to automatic does not lunge at a stale waypoint.
func (c *Controller) Disable(x, y float64, heading float64) Output {
	c.target.TargetX = int(x)
	c.target.TargetY = int(y)
	c.hasTarget = false
	c.prevDist = math.MaxFloat64
	c.out = Output{}
	return c.out
}

// Step computes the actuator outputs for the current position and heading.
func (c *Controller) Step(x, y, heading float64) Output {
	if !c.hasTarget || c.out.Arrived {
		c.out.Acceleration = 0
		c.out.Steering = 0
		return c.out
	}

	dx := float64(c.target.TargetX) - x
	dy := float64(c.target.TargetY) - y
	dist := math.Hypot(dx, dy)

	targetHeading := kinematic.NormalizeHeading(math.Atan2(dy, dx) * 180 / math.Pi)
	headingErr := kinematic.AngleDiff(targetHeading, heading)

	overshoot := dist > c.prevDist && c.prevDist < arrivalRadius*2
	c.prevDist = dist

	if (dist <= arrivalRadius && math.Abs(headingErr) <= alignmentThreshold) ||
		(overshoot && dist < arrivalRadius*1.5) {
		c.out = Output{Arrived: true}
		return c.out
	}

	c.out.Acceleration = speedControl(dist, c.target.TargetSpeed)
	c.out.Steering = headingControl(heading, headingErr)
	c.out.Arrived = false
	return c.out
}

// Target returns the current waypoint and whether one is active.
func (c *Controller) Target() (telemetry.Setpoint, bool) {
	return c.target, c.hasTarget
}

// speedControl stages the acceleration command by distance: full cruise far
// out, an increasingly aggressive ramp-down inside decelDistance and a dead
// stop right on top of the target. Reverse is never commanded.
func speedControl(dist float64, cruise int) int {
	maxAccel := maxAcceleration
	if cruise > 0 && cruise < maxAccel {
		maxAccel = cruise
	}
	var out int
	switch {
	case dist < 2:
		out = 0
	case dist < 12:
		out = int(10 * dist / 12)
	case dist < decelDistance:
		factor := math.Pow(dist/decelDistance, 1.5)
		out = int(float64(maxAccel) * factor * 0.4)
	default:
		out = maxAccel
	}
	if out > 100 {
		out = 100
	}
	if out < 0 {
		out = 0
	}
	return out
}

// headingControl is a proportional controller on the wrapped heading error.
// The returned value is an absolute steering target for the truck.
func headingControl(heading, headingErr float64) int {
	correction := headingGain * headingErr
	if correction > steeringLimit {
		correction = steeringLimit
	}
	if correction < -steeringLimit {
		correction = -steeringLimit
	}
	return int(kinematic.NormalizeHeading(heading + correction))
}
