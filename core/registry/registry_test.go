package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/minefleet/core/bus"
	"github.com/minefleet/minefleet/core/logger"
	"github.com/minefleet/minefleet/core/model"
	"github.com/minefleet/minefleet/core/telemetry"
	"github.com/minefleet/minefleet/internal/clock"
)

func newTestRegistry() (*Registry, *clock.Fake) {
	fk := clock.NewFake(time.Unix(5000, 0))
	return New(fk, logger.Nop{}, nil), fk
}

func sensors(t *testing.T, f telemetry.SensorFrame) []byte {
	t.Helper()
	payload, err := telemetry.MarshalSensors(f)
	require.NoError(t, err)
	return payload
}

func TestUnseenIDCreatesRecordAndRosterEvent(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Close()
	events := r.RosterChanges()

	r.OnMessage(bus.SensorsTopic(7), sensors(t, telemetry.SensorFrame{
		TruckID: 7, PositionX: 42, PositionY: 17, Temperature: 80,
	}))

	rec, ok := r.Record(7)
	require.True(t, ok)
	assert.Equal(t, 7, rec.ID)
	assert.Equal(t, 42, rec.PositionX)
	assert.Equal(t, 17, rec.PositionY)
	assert.Equal(t, model.ModeUnknown, rec.Mode)

	select {
	case ev := <-events:
		assert.Equal(t, 7, ev.TruckID)
		assert.Equal(t, 1, ev.Size)
	default:
		t.Fatal("expected a roster event for the new truck")
	}

	// A second message for the same id is not a roster change.
	r.OnMessage(bus.SensorsTopic(7), sensors(t, telemetry.SensorFrame{TruckID: 7}))
	select {
	case <-events:
		t.Fatal("known truck must not raise a roster event")
	default:
	}
}

func TestStateFrameSetsModeAndFaultState(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Close()

	payload, err := telemetry.MarshalState(telemetry.StateFrame{Automatic: true, Fault: true})
	require.NoError(t, err)
	r.OnMessage(bus.StateTopic(2), payload)

	rec, ok := r.Record(2)
	require.True(t, ok)
	assert.Equal(t, model.ModeAuto, rec.Mode)
	assert.True(t, rec.FaultState)
	assert.True(t, rec.HasAnyFault())
}

func TestCommandFrameRecordsActuators(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Close()

	r.OnMessage(bus.CommandsTopic(3), []byte(`{"acceleration":35,"steering":120}`))
	rec, _ := r.Record(3)
	assert.Equal(t, 35, rec.Acceleration)
	assert.Equal(t, 120, rec.Steering)

	// Partial update: steering alone leaves the observed acceleration.
	r.OnMessage(bus.CommandsTopic(3), []byte(`{"steering":90}`))
	rec, _ = r.Record(3)
	assert.Equal(t, 35, rec.Acceleration)
	assert.Equal(t, 90, rec.Steering)

	// Autopilot echo vocabulary lands in the same fields.
	r.OnMessage(bus.CommandsTopic(3), []byte(`{"accelerate":10,"arrived":true}`))
	rec, _ = r.Record(3)
	assert.Equal(t, 10, rec.Acceleration)
	assert.True(t, rec.Arrived)
}

func TestMalformedMessageDiscardedAlone(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Close()

	r.OnMessage(bus.SensorsTopic(1), sensors(t, telemetry.SensorFrame{TruckID: 1, PositionX: 5}))
	r.OnMessage(bus.SensorsTopic(1), []byte("garbage"))
	r.OnMessage("not/a/real/topic", []byte("{}"))
	r.OnMessage("truck/abc/sensors", []byte("{}"))

	rec, ok := r.Record(1)
	require.True(t, ok)
	assert.Equal(t, 5, rec.PositionX, "bad payload must not disturb the record")
	assert.Len(t, r.IDs(), 1)
}

func TestHasAnyFaultFromTemperatureAlone(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Close()

	r.OnMessage(bus.SensorsTopic(1), sensors(t, telemetry.SensorFrame{TruckID: 1, Temperature: 121}))
	rec, _ := r.Record(1)
	assert.True(t, rec.HasAnyFault())
	assert.True(t, rec.TempWarning())

	r.OnMessage(bus.SensorsTopic(1), sensors(t, telemetry.SensorFrame{TruckID: 1, Temperature: 120}))
	rec, _ = r.Record(1)
	assert.False(t, rec.HasAnyFault())
	assert.True(t, rec.TempWarning())

	r.OnMessage(bus.SensorsTopic(1), sensors(t, telemetry.SensorFrame{TruckID: 1, Temperature: 95}))
	rec, _ = r.Record(1)
	assert.False(t, rec.TempWarning())
}

func TestDisplayStatusPriority(t *testing.T) {
	rec := TruckRecord{Mode: model.ModeAuto, Temperature: 130, FaultHydraulic: true}
	assert.Equal(t, StatusFault, rec.DisplayStatus())

	rec.FaultHydraulic = false
	assert.Equal(t, StatusCritical, rec.DisplayStatus())

	rec.Temperature = 100
	assert.Equal(t, StatusWarning, rec.DisplayStatus())

	rec.Temperature = 80
	assert.Equal(t, StatusAuto, rec.DisplayStatus())

	rec.Mode = model.ModeManual
	assert.Equal(t, StatusManual, rec.DisplayStatus())

	rec.Mode = model.ModeUnknown
	assert.Equal(t, StatusUnknown, rec.DisplayStatus())
}

func TestTrailIsBounded(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Close()

	for i := 0; i < trailDepth+10; i++ {
		r.OnMessage(bus.SensorsTopic(1), sensors(t, telemetry.SensorFrame{TruckID: 1, PositionX: i}))
	}
	trail := r.Trail(1)
	require.Len(t, trail, trailDepth)
	assert.Equal(t, 10, trail[0].X, "oldest samples are evicted first")
	assert.Equal(t, trailDepth+9, trail[len(trail)-1].X)

	assert.Nil(t, r.Trail(99))
}

func TestTrailSkipsRepeatedPositions(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.OnMessage(bus.SensorsTopic(1), sensors(t, telemetry.SensorFrame{TruckID: 1, PositionX: i}))
	}
	// A parked truck keeps reporting; the trail must hold its history.
	for i := 0; i < trailDepth; i++ {
		r.OnMessage(bus.SensorsTopic(1), sensors(t, telemetry.SensorFrame{TruckID: 1, PositionX: 4}))
	}
	trail := r.Trail(1)
	require.Len(t, trail, 5)
	assert.Equal(t, 0, trail[0].X)
	assert.Equal(t, 4, trail[len(trail)-1].X)
}

func TestStalenessTracksClock(t *testing.T) {
	r, fk := newTestRegistry()
	defer r.Close()

	r.OnMessage(bus.SensorsTopic(1), sensors(t, telemetry.SensorFrame{TruckID: 1}))
	age, ok := r.Staleness(1)
	require.True(t, ok)
	assert.Zero(t, age)

	fk.Advance(750 * time.Millisecond)
	age, ok = r.Staleness(1)
	require.True(t, ok)
	assert.Equal(t, 750*time.Millisecond, age)

	_, ok = r.Staleness(99)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	r, fk := newTestRegistry()
	defer r.Close()

	assert.Equal(t, FleetStats{}, r.Stats())

	r.OnMessage(bus.SensorsTopic(1), sensors(t, telemetry.SensorFrame{TruckID: 1}))
	fk.Advance(time.Second)
	r.OnMessage(bus.SensorsTopic(2), sensors(t, telemetry.SensorFrame{TruckID: 2, Temperature: 130}))

	s := r.Stats()
	assert.Equal(t, 2, s.Trucks)
	assert.Equal(t, 1, s.Faulted)
	assert.Equal(t, 500*time.Millisecond, s.AverageAge)
}

func TestRecordsSorted(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Close()

	for _, id := range []int{5, 2, 9} {
		r.OnMessage(bus.SensorsTopic(id), sensors(t, telemetry.SensorFrame{TruckID: id}))
	}
	recs := r.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, []int{2, 5, 9}, []int{recs[0].ID, recs[1].ID, recs[2].ID})
	assert.Equal(t, []int{2, 5, 9}, r.IDs())
}
