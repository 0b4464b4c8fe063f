package telemetry

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/minefleet/core/model"
)

func TestEncodeSensorsWithinNoiseBound(t *testing.T) {
	noise := DefaultNoise()
	codec := NewCodec(noise, rand.New(rand.NewSource(1)))
	s := model.NewTruckState(3, 412.7, 260.2)
	s.Heading = 45
	now := time.UnixMilli(1700000000000)

	for i := 0; i < 200; i++ {
		f := codec.EncodeSensors(s, now)
		assert.Equal(t, 3, f.TruckID)
		assert.Equal(t, now.UnixMilli(), f.Timestamp)
		// Truncation can move a noisy value by a little less than one
		// extra unit below the true reading.
		assert.LessOrEqual(t, math.Abs(float64(f.PositionX)-s.X), noise.Position+1)
		assert.LessOrEqual(t, math.Abs(float64(f.PositionY)-s.Y), noise.Position+1)
		assert.LessOrEqual(t, math.Abs(float64(f.AngleX)-s.Heading), noise.Angle+1)
		assert.LessOrEqual(t, math.Abs(float64(f.Temperature)-s.Temperature), noise.Temperature+1)
	}
}

func TestEncodeSensorsAngleWraps(t *testing.T) {
	codec := NewCodec(DefaultNoise(), rand.New(rand.NewSource(7)))
	s := model.NewTruckState(1, 0, 0)
	s.Heading = 359.7
	for i := 0; i < 200; i++ {
		f := codec.EncodeSensors(s, time.Now())
		assert.GreaterOrEqual(t, f.AngleX, 0)
		assert.Less(t, f.AngleX, 360)
	}
}

func TestEncodeSensorsCarriesFaults(t *testing.T) {
	codec := NewCodec(Noise{}, rand.New(rand.NewSource(1)))
	s := model.NewTruckState(2, 100, 200)
	s.FaultElectrical = true
	f := codec.EncodeSensors(s, time.Now())
	assert.True(t, f.FaultElectrical)
	assert.False(t, f.FaultHydraulic)
}

func TestSensorsRoundTrip(t *testing.T) {
	codec := NewCodec(DefaultNoise(), rand.New(rand.NewSource(4)))
	s := model.NewTruckState(9, 500, 350)
	f := codec.EncodeSensors(s, time.UnixMilli(42))
	payload, err := MarshalSensors(f)
	require.NoError(t, err)
	got, err := DecodeSensors(payload)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeCommandPartial(t *testing.T) {
	c, err := DecodeCommand([]byte(`{"steering":10}`))
	require.NoError(t, err)
	require.NotNil(t, c.Steering)
	assert.Equal(t, 10, *c.Steering)
	assert.Nil(t, c.Acceleration, "steering alone must not imply an acceleration")
	assert.Nil(t, c.Rearm)
}

func TestDecodeCommandUnknownKeysIgnored(t *testing.T) {
	c, err := DecodeCommand([]byte(`{"acceleration":40,"telepathy":true}`))
	require.NoError(t, err)
	require.NotNil(t, c.Acceleration)
	assert.Equal(t, 40, *c.Acceleration)
}

func TestDecodeCommandMalformedFieldDroppedAlone(t *testing.T) {
	c, err := DecodeCommand([]byte(`{"acceleration":"fast","steering":25,"rearm":true}`))
	require.NoError(t, err)
	assert.Nil(t, c.Acceleration, "malformed field fails alone")
	require.NotNil(t, c.Steering)
	assert.Equal(t, 25, *c.Steering)
	require.NotNil(t, c.Rearm)
	assert.True(t, *c.Rearm)
}

func TestDecodeCommandNotAnObject(t *testing.T) {
	_, err := DecodeCommand([]byte(`[1,2,3]`))
	assert.Error(t, err)
	_, err = DecodeCommand([]byte(`garbage`))
	assert.Error(t, err)
}

func TestDecodeCommandEmptyObject(t *testing.T) {
	c, err := DecodeCommand([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestCommandMergeLastWriteWinsPerField(t *testing.T) {
	merged := Command{}.
		Merge(Command{Accelerate: Int(10), SteerLeft: Int(5)}).
		Merge(Command{Accelerate: Int(20)}).
		Merge(Command{Rearm: Bool(true)})

	require.NotNil(t, merged.Accelerate)
	assert.Equal(t, 20, *merged.Accelerate)
	require.NotNil(t, merged.SteerLeft)
	assert.Equal(t, 5, *merged.SteerLeft, "absent field keeps the earlier value")
	require.NotNil(t, merged.Rearm)
}

func TestMarshalCommandOmitsAbsentFields(t *testing.T) {
	payload, err := MarshalCommand(Command{Accelerate: Int(0)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"accelerate":0}`, string(payload), "explicit zero is sent, absent fields are not")
}

func TestSetpointRoundTrip(t *testing.T) {
	payload, err := MarshalSetpoint(Setpoint{TargetX: 640, TargetY: 480, TargetSpeed: 50})
	require.NoError(t, err)
	sp, err := DecodeSetpoint(payload)
	require.NoError(t, err)
	assert.Equal(t, Setpoint{TargetX: 640, TargetY: 480, TargetSpeed: 50}, sp)
}
