// Package kinematic implements the per-tick state transition of a simulated
// haul truck: velocity integration, rate-limited steering, position update
// with edge clamping and a velocity-driven thermal model. Advance is a total
// function; out-of-range inputs are clamped, never rejected.
package kinematic

import (
	"math"

	"github.com/minefleet/minefleet/core/model"
)

// Advance integrates one tick of dt (in tick units, 1.0 for a nominal tick)
// and returns the resulting state. The input state is not modified. The
// update order is fixed: velocity, steering, position, temperature.
func Advance(s model.TruckState, p model.Params, dt float64) model.TruckState {
	s = advanceVelocity(s, p, dt)
	s = advanceSteering(s, p, dt)
	s = advancePosition(s, p)
	s = advanceTemperature(s, p, dt)
	return s
}

func advanceVelocity(s model.TruckState, p model.Params, dt float64) model.TruckState {
	if s.Acceleration != 0 {
		s.Velocity += p.AccelRate * (float64(s.Acceleration) / 100.0) * dt
	} else {
		// No coasting: a zero command stops the truck immediately.
		s.Velocity = 0
	}
	s.Velocity = clamp(s.Velocity, -p.MaxSpeed, p.MaxSpeed)
	return s
}

func advanceSteering(s model.TruckState, p model.Params, dt float64) model.TruckState {
	diff := AngleDiff(float64(s.Steering), s.Heading)
	maxTurn := p.MaxTurnRate * dt
	if math.Abs(diff) > maxTurn {
		if diff > 0 {
			s.Heading += maxTurn
		} else {
			s.Heading -= maxTurn
		}
	} else {
		s.Heading = float64(s.Steering)
	}
	s.Heading = NormalizeHeading(s.Heading)
	return s
}

func advancePosition(s model.TruckState, p model.Params) model.TruckState {
	rad := s.Heading * math.Pi / 180
	s.X += s.Velocity * math.Cos(rad)
	s.Y += s.Velocity * math.Sin(rad)
	s.X = clamp(s.X, 0, p.MapWidth)
	s.Y = clamp(s.Y, 0, p.MapHeight)
	return s
}

func advanceTemperature(s model.TruckState, p model.Params, dt float64) model.TruckState {
	if math.Abs(s.Velocity) > p.HeatThreshold {
		s.Temperature += p.HeatRate * dt
	} else {
		s.Temperature -= p.CoolRate * dt
	}
	s.Temperature = clamp(s.Temperature, p.TempMin, p.TempMax)
	return s
}

// AngleDiff returns the shortest signed difference target-from, normalized
// to (-180, 180].
func AngleDiff(target, from float64) float64 {
	diff := target - from
	for diff > 180 {
		diff -= 360
	}
	for diff <= -180 {
		diff += 360
	}
	return diff
}

// NormalizeHeading wraps a heading into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
