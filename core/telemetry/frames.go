// Package telemetry defines the JSON wire frames exchanged between the
// truck simulators and the supervisory side, and the codec that produces
// noisy sensor readings from simulator state.
package telemetry

// SensorFrame is the noisy sensor snapshot a truck publishes on
// truck/<id>/sensors. All readings are truncated to integers, the way the
// onboard acquisition hardware reports them.
type SensorFrame struct {
	TruckID         int   `json:"truck_id"`
	PositionX       int   `json:"position_x"`
	PositionY       int   `json:"position_y"`
	AngleX          int   `json:"angle_x"`
	Temperature     int   `json:"temperature"`
	FaultElectrical bool  `json:"fault_electrical"`
	FaultHydraulic  bool  `json:"fault_hydraulic"`
	Timestamp       int64 `json:"timestamp"`
}

// StateFrame is the derived operating state published on truck/<id>/state.
// Fault aggregates the individual fault sources into a single flag.
type StateFrame struct {
	Automatic bool `json:"automatic"`
	Fault     bool `json:"fault"`
}

// Setpoint is a one-shot navigation target published on truck/<id>/setpoint.
// It is not a continuous stream: one waypoint, then silence until the next.
type Setpoint struct {
	TargetX     int `json:"target_x"`
	TargetY     int `json:"target_y"`
	TargetSpeed int `json:"target_speed"`
}

// Echo is the actuator echo a truck publishes on its commands topic while
// driving autonomously, so the supervisory side can display what the
// autopilot is doing.
type Echo struct {
	Acceleration int  `json:"acceleration"`
	Steering     int  `json:"steering"`
	Arrived      bool `json:"arrived"`
}
