package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/farmbridge/core/metrics"
	"github.com/kilianp07/farmbridge/infra/logger"
)

// InfluxSink mirrors bridge events to InfluxDB. Points go through the
// client's non-blocking write API so a slow database never stalls a tick.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	log      logger.Logger
}

var (
	_ coremetrics.ConnectionRecorder = (*InfluxSink)(nil)
	_ coremetrics.CommandRecorder    = (*InfluxSink)(nil)
	_ coremetrics.ThresholdRecorder  = (*InfluxSink)(nil)
)

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().
			SetHTTPClient(&http.Client{Timeout: 5 * time.Second}).
			SetFlushInterval(1000))
	s := &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPI(org, bucket),
		log:      logger.New("influx-sink"),
	}
	go func(errs <-chan error) {
		for err := range errs {
			s.log.Errorf("influx write: %v", err)
		}
	}(s.writeAPI.Errors())
	return s
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordTelemetry writes one point per cycle with a field per valid reading.
func (s *InfluxSink) RecordTelemetry(ev coremetrics.TelemetryEvent) error {
	p := write.NewPointWithMeasurement("telemetry").
		AddTag("device_id", ev.DeviceID).
		AddTag("published", strconv.FormatBool(ev.Published))
	faults := 0
	for _, r := range ev.Readings {
		if r.Valid {
			p.AddField(r.Name, round3(r.Value))
		} else {
			faults++
		}
	}
	p.AddField("faults", faults).SetTime(ev.Time)
	s.writeAPI.WritePoint(p)
	return nil
}

func (s *InfluxSink) RecordConnection(ev coremetrics.ConnectionEvent) error {
	p := write.NewPointWithMeasurement("connection_event").
		AddTag("device_id", ev.DeviceID).
		AddTag("from", ev.From).
		AddTag("to", ev.To).
		AddField("attempt", ev.Attempt).
		AddField("retry_in_ms", ev.RetryIn.Milliseconds()).
		SetTime(ev.Time)
	if ev.Err != "" {
		p.AddField("error", ev.Err)
	}
	s.writeAPI.WritePoint(p)
	return nil
}

func (s *InfluxSink) RecordCommand(ev coremetrics.CommandEvent) error {
	p := write.NewPointWithMeasurement("command_event").
		AddTag("device_id", ev.DeviceID).
		AddTag("command", ev.Command).
		AddTag("status", ev.Status).
		AddTag("duplicate", strconv.FormatBool(ev.Duplicate)).
		AddField("request_id", ev.RequestID).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	s.writeAPI.WritePoint(p)
	return nil
}

func (s *InfluxSink) RecordThresholdBreach(ev coremetrics.ThresholdEvent) error {
	p := write.NewPointWithMeasurement("threshold_breach").
		AddTag("device_id", ev.DeviceID).
		AddTag("sensor", ev.Sensor).
		AddField("value", round3(ev.Value)).
		SetTime(ev.Time)
	if ev.Min != nil {
		p.AddField("min", *ev.Min)
	}
	if ev.Max != nil {
		p.AddField("max", *ev.Max)
	}
	s.writeAPI.WritePoint(p)
	return nil
}

// Flush writes buffered points immediately.
func (s *InfluxSink) Flush() { s.writeAPI.Flush() }

// Close flushes pending points and releases the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
