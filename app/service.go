package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/farmbridge/config"
	"github.com/kilianp07/farmbridge/core/actuator"
	"github.com/kilianp07/farmbridge/core/bridge"
	"github.com/kilianp07/farmbridge/core/journal"
	coremetrics "github.com/kilianp07/farmbridge/core/metrics"
	"github.com/kilianp07/farmbridge/core/sensor"
	"github.com/kilianp07/farmbridge/core/transport"
	"github.com/kilianp07/farmbridge/infra/amqp"
	"github.com/kilianp07/farmbridge/infra/hal/sim"
	"github.com/kilianp07/farmbridge/infra/httpapi"
	"github.com/kilianp07/farmbridge/infra/logger"
	_ "github.com/kilianp07/farmbridge/infra/metrics"
	"github.com/kilianp07/farmbridge/infra/mqtt"
	"github.com/kilianp07/farmbridge/infra/sysinfo"
)

// ErrRestart is returned by Run after a restart command was answered.
var ErrRestart = errors.New("restart requested")

// compensationSensor is the reading fed to TDS drivers for temperature
// compensation.
const compensationSensor = "temperature"

// Snapshot is the view of the device published after every tick.
type Snapshot struct {
	DeviceID      string           `json:"device_id"`
	State         bridge.State     `json:"state"`
	Attempts      int              `json:"attempts"`
	Failures      int              `json:"failures"`
	NextAttempt   time.Time        `json:"next_attempt,omitempty"`
	LastTelemetry time.Time        `json:"last_telemetry,omitempty"`
	SendInterval  string           `json:"send_interval"`
	Readings      []sensor.Reading `json:"readings"`
	Relays        []actuator.State `json:"relays"`
	Thresholds    map[string]Limit `json:"thresholds"`
	Updated       time.Time        `json:"updated"`
}

// Option customizes a Service.
type Option func(*Service)

// WithTransport replaces the transport selected by the configuration.
func WithTransport(t transport.Transport) Option { return func(s *Service) { s.transport = t } }

// WithClock replaces the wall clock driving the scheduler.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service runs one device: the simulated board, its sensors and relays, and
// the bridge to the broker.
type Service struct {
	cfg *config.Config
	log logger.Logger
	now func() time.Time

	board      *sim.Board
	sensors    []sensor.Sensor
	relays     *actuator.Bank
	thresholds *Thresholds
	transport  transport.Transport
	bridge     *bridge.Bridge
	journal    journal.Store
	sink       coremetrics.Sink
	api        *httpapi.Server

	readings []sensor.Reading
	snapshot atomic.Pointer[Snapshot]
	restart  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, log: logger.New("service"), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if err := s.build(); err != nil {
		_ = s.release()
		return nil, err
	}
	s.publishSnapshot(bridge.Report{State: s.bridge.State()}, s.now())
	return s, nil
}

func (s *Service) build() error {
	cfg := s.cfg
	s.board = sim.NewBoard(cfg.Board)

	sensors, err := sensor.Build(cfg.Sensors, s.board)
	if err != nil {
		return fmt.Errorf("sensors: %w", err)
	}
	s.sensors = sensors

	if s.relays, err = actuator.NewBank(s.board, cfg.Relays, logger.New("actuator")); err != nil {
		return fmt.Errorf("relays: %w", err)
	}
	if s.journal, err = journal.Open(cfg.Journal); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if s.transport == nil {
		s.transport = newTransport(cfg)
	}

	boot := s.now()
	clock, _ := bridge.NewTimeSource(cfg.Bridge.TimestampSource, boot)
	qos := cfg.MQTT.QoS.Levels()
	s.thresholds = NewThresholds(cfg.Device.ID, s.sink, logger.New("thresholds"))

	s.bridge, err = bridge.New(bridge.Options{
		DeviceID:        cfg.Device.ID,
		Secret:          cfg.Device.Secret,
		FirmwareVersion: cfg.Device.FirmwareVersion,
		ProtocolVersion: cfg.Bridge.ProtocolVersion,
		Transport:       s.transport,
		QoS:             &qos,
		Sensors:         s.sensors,
		BatterySensor:   cfg.Bridge.BatterySensor,
		Radio:           s.board.Radio(),
		FreeMemory:      sysinfo.FreeMemory,
		SendInterval:    cfg.Bridge.SendInterval(),
		RetryInterval:   cfg.Bridge.RetryInterval(),
		ConnectTimeout:  cfg.Bridge.ConnectTimeout(),
		Boot:            boot,
		Clock:           clock,
		DedupeWindow:    cfg.Bridge.Dedupe(),
		OnReadings:      s.onReadings,
		Metrics:         s.sink,
		Journal:         s.journal,
		Logger:          logger.New("bridge"),
	})
	if err != nil {
		return err
	}
	s.bridge.SetCommandHandler(NewRouter(RouterDeps{
		Relays:          s.relays,
		IrrigationRelay: cfg.IrrigationRelay,
		Sensors:         s.sensors,
		Thresholds:      s.thresholds,
		Interval:        s.bridge,
		Restart:         func() { s.restart.Store(true) },
		Now:             s.now,
		Logger:          logger.New("commands"),
	}))

	if cfg.HTTP.Address != "" {
		s.api = httpapi.New(cfg.HTTP, httpapi.Deps{
			State:   func() any { return s.Snapshot() },
			Ready:   func() bool { return s.Snapshot().State == bridge.Connected },
			Journal: s.journal,
		})
	}
	return nil
}

func newTransport(cfg *config.Config) transport.Transport {
	if cfg.Transport == "amqp" {
		return amqp.NewTransport(cfg.AMQP)
	}
	return mqtt.NewTransport(cfg.MQTT.Config)
}

// Bridge returns the device bridge.
func (s *Service) Bridge() *bridge.Bridge { return s.bridge }

// Snapshot returns the state captured after the last tick.
func (s *Service) Snapshot() Snapshot { return *s.snapshot.Load() }

// Run initializes the sensors and drives the scheduler until ctx is done or a
// restart command was answered, in which case it returns ErrRestart. The
// device is shut down either way.
func (s *Service) Run(ctx context.Context) error {
	if err := sensor.InitializeAll(ctx, s.sensors); err != nil {
		_ = s.Close()
		return fmt.Errorf("initialize sensors: %w", err)
	}
	if s.api != nil {
		if err := s.api.Start(ctx); err != nil {
			_ = s.Close()
			return fmt.Errorf("diagnostics API: %w", err)
		}
	}
	s.log.Infow("device started", map[string]any{
		"device_id": s.cfg.Device.ID,
		"transport": s.cfg.Transport,
		"sensors":   len(s.sensors),
	})

	ticker := time.NewTicker(s.cfg.Bridge.TickInterval())
	defer ticker.Stop()
	for {
		s.step(ctx)
		if s.restart.Load() {
			s.log.Infof("restarting on command")
			if err := s.Close(); err != nil {
				s.log.Errorf("shutdown: %v", err)
			}
			return ErrRestart
		}
		select {
		case <-ctx.Done():
			return s.Close()
		case <-ticker.C:
		}
	}
}

// step runs one scheduler iteration.
func (s *Service) step(ctx context.Context) bridge.Report {
	now := s.now()
	r := s.bridge.Tick(ctx, now)
	if r.TelemetryErr != nil && !errors.Is(r.TelemetryErr, bridge.ErrNotConnected) {
		s.log.Warnf("telemetry cycle: %v", r.TelemetryErr)
	}
	s.relays.Tick(now)
	s.publishSnapshot(r, now)
	return r
}

func (s *Service) onReadings(now time.Time, readings []sensor.Reading) {
	s.readings = append(s.readings[:0], readings...)
	s.thresholds.Check(now, readings)
	for _, r := range readings {
		if r.Name != compensationSensor || !r.Valid {
			continue
		}
		for _, sn := range s.sensors {
			if tds, ok := sn.(*sensor.TDS); ok {
				tds.SetTemperature(r.Value)
			}
		}
	}
}

func (s *Service) publishSnapshot(r bridge.Report, now time.Time) {
	conn := s.bridge.Connection()
	snap := &Snapshot{
		DeviceID:      s.bridge.DeviceID(),
		State:         r.State,
		Attempts:      conn.Attempts(),
		Failures:      conn.Failures(),
		NextAttempt:   r.NextAttempt,
		LastTelemetry: s.bridge.LastTelemetry(),
		SendInterval:  s.bridge.SendInterval().String(),
		Readings:      append([]sensor.Reading(nil), s.readings...),
		Relays:        s.relays.States(),
		Thresholds:    s.thresholds.Limits(),
		Updated:       now,
	}
	s.snapshot.Store(snap)
}

// Close announces the device offline, switches every relay off and releases
// the sinks and stores. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.bridge.Close(context.Background(), s.now()); err != nil {
			errs = append(errs, fmt.Errorf("offline status: %w", err))
		}
		errs = append(errs, s.release())
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// release frees everything built so far. Fields may be nil when New failed
// half way.
func (s *Service) release() error {
	var errs []error
	if s.relays != nil {
		if err := s.relays.AllOff(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, sn := range s.sensors {
		if f, ok := sn.(*sensor.FlowRate); ok {
			f.Close()
		}
	}
	if s.api != nil {
		if err := s.api.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c, ok := s.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.board != nil {
		s.board.Close()
	}
	return errors.Join(errs...)
}
