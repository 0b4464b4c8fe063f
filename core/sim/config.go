package sim

import (
	"fmt"
	"time"

	"github.com/minefleet/minefleet/core/model"
	"github.com/minefleet/minefleet/core/telemetry"
)

// TruckSpec places one truck on the map at startup.
type TruckSpec struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Config holds parameters for the fleet simulator.
type Config struct {
	Trucks []TruckSpec `json:"trucks"`
	// TickPeriodMS is the physics tick period in milliseconds.
	TickPeriodMS int `json:"tick_period_ms"`
	// SensorEveryN publishes a sensor frame every Nth tick.
	SensorEveryN int `json:"sensor_every_n"`
	// StateEveryN re-publishes the state frame every Nth tick even when
	// unchanged, so late subscribers converge.
	StateEveryN int `json:"state_every_n"`
	// CommandTimeoutMS resets the manual acceleration command to zero when
	// no command has arrived within the window. Supervisory heartbeats
	// exist to defeat exactly this decay.
	CommandTimeoutMS int `json:"command_timeout_ms"`

	Params model.Params    `json:"params"`
	Noise  telemetry.Noise `json:"noise"`
}

// SetDefaults applies the stock three-truck mine layout and nominal rates.
func (c *Config) SetDefaults() {
	if len(c.Trucks) == 0 {
		c.Trucks = []TruckSpec{
			{ID: 1, X: 100, Y: 200},
			{ID: 2, X: 200, Y: 300},
			{ID: 3, X: 300, Y: 400},
		}
	}
	if c.TickPeriodMS <= 0 {
		c.TickPeriodMS = 33
	}
	if c.SensorEveryN <= 0 {
		c.SensorEveryN = 1
	}
	if c.StateEveryN <= 0 {
		c.StateEveryN = 30
	}
	if c.CommandTimeoutMS <= 0 {
		c.CommandTimeoutMS = 500
	}
	if c.Params == (model.Params{}) {
		c.Params = model.DefaultParams()
	}
	if c.Noise == (telemetry.Noise{}) {
		c.Noise = telemetry.DefaultNoise()
	}
}

// Validate checks the truck roster.
func (c Config) Validate() error {
	seen := make(map[int]bool, len(c.Trucks))
	for _, spec := range c.Trucks {
		if spec.ID <= 0 {
			return fmt.Errorf("truck id must be positive, got %d", spec.ID)
		}
		if seen[spec.ID] {
			return fmt.Errorf("duplicate truck id %d", spec.ID)
		}
		seen[spec.ID] = true
	}
	if c.Params.MaxSpeed <= 0 {
		return fmt.Errorf("max_speed must be positive")
	}
	return nil
}

// TickPeriod returns the tick period as a Duration.
func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.TickPeriodMS) * time.Millisecond
}

// CommandTimeout returns the manual command decay window.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}
