package model

// TruckState is the simulator-owned physical state of one truck. It is
// mutated only by the simulator's tick and by the inbound command merge;
// the supervisory side never sees this type, only telemetry derived
// from it.
type TruckState struct {
	ID int

	// Position in map units, clamped to the map extents.
	X float64
	Y float64
	// Heading in degrees, kept in [0,360).
	Heading float64
	// Velocity in units per tick, kept in [-MaxSpeed, MaxSpeed].
	Velocity float64

	// Acceleration command in percent, -100..100.
	Acceleration int
	// Steering target in degrees.
	Steering int

	// Temperature in degrees Celsius, kept in [TempMin, TempMax].
	Temperature float64

	FaultElectrical bool
	FaultHydraulic  bool
}

// Params holds the kinematic and thermal constants of the model.
type Params struct {
	MaxSpeed      float64 `json:"max_speed"`
	AccelRate     float64 `json:"accel_rate"`
	MaxTurnRate   float64 `json:"max_turn_rate"`
	MapWidth      float64 `json:"map_width"`
	MapHeight     float64 `json:"map_height"`
	TempMin       float64 `json:"temp_min"`
	TempMax       float64 `json:"temp_max"`
	HeatThreshold float64 `json:"heat_threshold"`
	HeatRate      float64 `json:"heat_rate"`
	CoolRate      float64 `json:"cool_rate"`
}

// DefaultParams returns the stock haul truck parameter set.
func DefaultParams() Params {
	return Params{
		MaxSpeed:      5.0,
		AccelRate:     0.3,
		MaxTurnRate:   5.0,
		MapWidth:      1000,
		MapHeight:     700,
		TempMin:       20,
		TempMax:       150,
		HeatThreshold: 2.0,
		HeatRate:      0.1,
		CoolRate:      0.05,
	}
}

// BaseTemperature is the temperature a truck starts at.
const BaseTemperature = 75.0

// Temperature thresholds shared by both sides of the wire. The supervisory
// registry derives warning/critical flags from the same constants the
// simulator uses for its aggregate fault flag.
const (
	TempWarningThreshold  = 95
	TempCriticalThreshold = 120
)

// NewTruckState creates a truck at the given position with nominal
// temperature and no faults.
func NewTruckState(id int, x, y float64) TruckState {
	return TruckState{ID: id, X: x, Y: y, Temperature: BaseTemperature}
}
