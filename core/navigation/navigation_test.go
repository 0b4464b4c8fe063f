package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/minefleet/minefleet/core/telemetry"
)

func TestStepWithoutTargetIsIdle(t *testing.T) {
	c := New()
	out := c.Step(100, 100, 0)
	assert.Zero(t, out.Acceleration)
	assert.False(t, out.Arrived)
}

func TestStepDrivesTowardTarget(t *testing.T) {
	c := New()
	c.SetTarget(telemetry.Setpoint{TargetX: 500, TargetY: 100, TargetSpeed: 50})
	out := c.Step(100, 100, 0)
	assert.Greater(t, out.Acceleration, 0)
	assert.False(t, out.Arrived)
	// Target is due east and we already face east: no correction needed.
	assert.Equal(t, 0, out.Steering)
}

func TestStepSteersTowardTarget(t *testing.T) {
	c := New()
	c.SetTarget(telemetry.Setpoint{TargetX: 100, TargetY: 500, TargetSpeed: 50})
	out := c.Step(100, 100, 0)
	// Target is due south (+y); expect a right-hand steering target near 72
	// degrees given the proportional gain.
	assert.Greater(t, out.Steering, 0)
	assert.LessOrEqual(t, out.Steering, 90)
}

func TestArrivalInsideRadiusAndAligned(t *testing.T) {
	c := New()
	c.SetTarget(telemetry.Setpoint{TargetX: 104, TargetY: 100, TargetSpeed: 50})
	out := c.Step(100, 100, 0)
	assert.True(t, out.Arrived)
	assert.Zero(t, out.Acceleration)
	assert.Zero(t, out.Steering)
}

func TestArrivalLatchesUntilNewTarget(t *testing.T) {
	c := New()
	c.SetTarget(telemetry.Setpoint{TargetX: 104, TargetY: 100, TargetSpeed: 50})
	_ = c.Step(100, 100, 0)
	out := c.Step(300, 300, 0)
	assert.True(t, out.Arrived, "arrival stays latched while the target is unchanged")

	c.SetTarget(telemetry.Setpoint{TargetX: 600, TargetY: 600, TargetSpeed: 50})
	out = c.Step(300, 300, 45)
	assert.False(t, out.Arrived)
	assert.Greater(t, out.Acceleration, 0)
}

func TestOvershootCountsAsArrival(t *testing.T) {
	c := New()
	c.SetTarget(telemetry.Setpoint{TargetX: 100, TargetY: 100, TargetSpeed: 50})
	// Approach to just outside the radius, heading badly misaligned so the
	// plain arrival condition cannot fire, then move away again.
	_ = c.Step(106, 100, 180)
	out := c.Step(107, 100, 180)
	assert.True(t, out.Arrived)
}

func TestDisableTracksCurrentPosition(t *testing.T) {
	c := New()
	c.SetTarget(telemetry.Setpoint{TargetX: 900, TargetY: 600, TargetSpeed: 50})
	out := c.Disable(250, 250, 90)
	assert.Zero(t, out.Acceleration)
	assert.Zero(t, out.Steering)
	sp, active := c.Target()
	assert.False(t, active)
	assert.Equal(t, 250, sp.TargetX)
	assert.Equal(t, 250, sp.TargetY)
}

func TestSpeedControlRampsDownNearTarget(t *testing.T) {
	far := speedControl(500, 50)
	mid := speedControl(40, 50)
	near := speedControl(8, 50)
	stop := speedControl(1, 50)
	assert.Greater(t, far, mid)
	assert.Greater(t, mid, near)
	assert.Greater(t, near, stop)
	assert.Zero(t, stop)
}

func TestSpeedControlHonorsCruiseSpeed(t *testing.T) {
	assert.Equal(t, 30, speedControl(500, 30))
	assert.Equal(t, maxAcceleration, speedControl(500, 0), "zero cruise falls back to the default ceiling")
}
