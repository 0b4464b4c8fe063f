package telemetry

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/minefleet/minefleet/core/model"
)

// Noise configures the uniform measurement noise added to each sensor
// field, in ± units of the field.
type Noise struct {
	Position    float64 `json:"position"`
	Angle       float64 `json:"angle"`
	Temperature float64 `json:"temperature"`
}

// DefaultNoise matches the stock sensor package.
func DefaultNoise() Noise {
	return Noise{Position: 2, Angle: 1, Temperature: 2}
}

// Codec turns simulator state into wire frames and back. The random source
// is injected so tests can use a fixed seed.
type Codec struct {
	noise Noise
	rng   *rand.Rand
}

// NewCodec creates a Codec with the given noise profile. A nil rng uses a
// time-seeded source.
func NewCodec(noise Noise, rng *rand.Rand) *Codec {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Codec{noise: noise, rng: rng}
}

// EncodeSensors builds a noisy sensor frame from the true state. Each field
// gets independent uniform noise, values are truncated to integers and the
// angle is re-wrapped into [0,360).
func (c *Codec) EncodeSensors(s model.TruckState, now time.Time) SensorFrame {
	angle := int(s.Heading+c.uniform(c.noise.Angle)) % 360
	if angle < 0 {
		angle += 360
	}
	return SensorFrame{
		TruckID:         s.ID,
		PositionX:       int(s.X + c.uniform(c.noise.Position)),
		PositionY:       int(s.Y + c.uniform(c.noise.Position)),
		AngleX:          angle,
		Temperature:     int(s.Temperature + c.uniform(c.noise.Temperature)),
		FaultElectrical: s.FaultElectrical,
		FaultHydraulic:  s.FaultHydraulic,
		Timestamp:       now.UnixMilli(),
	}
}

func (c *Codec) uniform(bound float64) float64 {
	if bound <= 0 {
		return 0
	}
	return (c.rng.Float64()*2 - 1) * bound
}

// MarshalSensors encodes the frame for publication.
func MarshalSensors(f SensorFrame) ([]byte, error) { return json.Marshal(f) }

// MarshalState encodes a state frame.
func MarshalState(f StateFrame) ([]byte, error) { return json.Marshal(f) }

// MarshalCommand encodes a partial command; absent fields are omitted from
// the payload entirely.
func MarshalCommand(c Command) ([]byte, error) { return json.Marshal(c) }

// MarshalSetpoint encodes a waypoint.
func MarshalSetpoint(sp Setpoint) ([]byte, error) { return json.Marshal(sp) }

// MarshalEcho encodes an actuator echo.
func MarshalEcho(e Echo) ([]byte, error) { return json.Marshal(e) }

// DecodeSensors parses a sensor frame.
func DecodeSensors(payload []byte) (SensorFrame, error) {
	var f SensorFrame
	err := json.Unmarshal(payload, &f)
	return f, err
}

// DecodeState parses a state frame.
func DecodeState(payload []byte) (StateFrame, error) {
	var f StateFrame
	err := json.Unmarshal(payload, &f)
	return f, err
}

// DecodeSetpoint parses a waypoint.
func DecodeSetpoint(payload []byte) (Setpoint, error) {
	var sp Setpoint
	err := json.Unmarshal(payload, &sp)
	return sp, err
}
