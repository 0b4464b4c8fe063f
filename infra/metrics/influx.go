package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/minefleet/minefleet/core/logger"
	coremetrics "github.com/minefleet/minefleet/core/metrics"
)

// InfluxSink writes fleet events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string, log logger.Logger) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      log,
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a missing database never takes
// the fleet down.
func NewInfluxSinkWithFallback(url, token, org, bucket string, log logger.Logger) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			log.Errorf("influx health check error: %v", err)
		} else {
			log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) RecordTick(e coremetrics.TickEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_tick").
		AddTag("truck_id", strconv.Itoa(e.TruckID)).
		AddField("duration_ms", float64(e.Duration.Microseconds())/1000).
		SetTime(e.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordFrame(e coremetrics.FrameEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_frame").
		AddTag("truck_id", strconv.Itoa(e.TruckID)).
		AddTag("class", e.Class).
		AddField("count", 1).
		SetTime(e.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordCommand(e coremetrics.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_command").
		AddTag("truck_id", strconv.Itoa(e.TruckID)).
		AddField("fields", e.Fields).
		SetTime(e.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordDrop(e coremetrics.DropEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_drop").
		AddTag("topic", e.Topic).
		AddTag("reason", e.Reason).
		AddField("count", 1).
		SetTime(e.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordRoster(e coremetrics.RosterEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_roster").
		AddField("size", e.Size).
		SetTime(e.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
