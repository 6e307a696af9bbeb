package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/farmbridge/core/actuator"
	"github.com/kilianp07/farmbridge/core/logger"
	"github.com/kilianp07/farmbridge/core/protocol"
	"github.com/kilianp07/farmbridge/core/sensor"
)

// Command names understood by the Router.
const (
	CmdSetRelay        = "set_relay"
	CmdIrrigate        = "irrigate"
	CmdSetThreshold    = "set_threshold"
	CmdUpdateInterval  = "update_interval"
	CmdCalibrateSensor = "calibrate_sensor"
	CmdRestart         = "restart"
)

// ErrUnknownCommand is returned for command names the Router has no route for.
var ErrUnknownCommand = errors.New("unknown command")

// IntervalSetter changes the telemetry period.
type IntervalSetter interface {
	SetSendInterval(time.Duration) error
}

type route func(ctx context.Context, p protocol.Params) (string, error)

// Router implements bridge.Handler for the device command set.
type Router struct {
	relays     *actuator.Bank
	irrigation string
	sensors    []sensor.Sensor
	thresholds *Thresholds
	interval   IntervalSetter
	restart    func()
	now        func() time.Time
	log        logger.Logger

	routes map[string]route
}

// RouterDeps are the collaborators a Router acts on. Nil collaborators make
// the matching commands fail.
type RouterDeps struct {
	Relays *actuator.Bank
	// IrrigationRelay is the relay driven by irrigate.
	IrrigationRelay string
	Sensors         []sensor.Sensor
	Thresholds      *Thresholds
	Interval        IntervalSetter
	// Restart is called once the restart command is accepted.
	Restart func()
	Now     func() time.Time
	Logger  logger.Logger
}

func NewRouter(d RouterDeps) *Router {
	r := &Router{
		relays:     d.Relays,
		irrigation: d.IrrigationRelay,
		sensors:    d.Sensors,
		thresholds: d.Thresholds,
		interval:   d.Interval,
		restart:    d.Restart,
		now:        d.Now,
		log:        logger.OrNop(d.Logger),
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.routes = map[string]route{
		CmdSetRelay:        r.setRelay,
		CmdIrrigate:        r.irrigate,
		CmdSetThreshold:    r.setThreshold,
		CmdUpdateInterval:  r.updateInterval,
		CmdCalibrateSensor: r.calibrateSensor,
		CmdRestart:         r.restartDevice,
	}
	return r
}

// HandleCommand routes cmd by name.
func (r *Router) HandleCommand(ctx context.Context, cmd protocol.Command) (string, error) {
	fn, ok := r.routes[cmd.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	return fn(ctx, cmd.Params)
}

// seconds reads an optional duration parameter given in seconds.
func seconds(p protocol.Params, key string) (time.Duration, bool, error) {
	if !p.Has(key) {
		return 0, false, nil
	}
	s, err := p.Float(key)
	if err != nil {
		return 0, true, err
	}
	if s < 0 || math.IsInf(s, 0) || math.IsNaN(s) {
		return 0, true, fmt.Errorf("parameter %q must be a non-negative number of seconds", key)
	}
	return time.Duration(s * float64(time.Second)), true, nil
}

// relayID accepts the relay id as a string or as a whole number, which is
// how the dashboard backend sends it.
func relayID(p protocol.Params) (string, error) {
	if !p.Has("relay_id") {
		return "", errors.New(`missing parameter "relay_id"`)
	}
	if id, err := p.String("relay_id"); err == nil {
		return id, nil
	}
	n, err := p.Int("relay_id")
	if err != nil {
		return "", errors.New(`parameter "relay_id" must be a string or a whole number`)
	}
	return strconv.FormatInt(int64(n), 10), nil
}

func (r *Router) setRelay(_ context.Context, p protocol.Params) (string, error) {
	if r.relays == nil {
		return "", errors.New("no relays configured")
	}
	id, err := relayID(p)
	if err != nil {
		return "", err
	}
	state, err := p.String("state")
	if err != nil {
		return "", err
	}
	var on bool
	switch strings.ToUpper(state) {
	case "ON":
		on = true
	case "OFF":
	default:
		return "", fmt.Errorf("state must be ON or OFF, got %q", state)
	}
	d, _, err := seconds(p, "duration")
	if err != nil {
		return "", err
	}
	if err := r.relays.Set(id, on, r.now(), d); err != nil {
		return "", err
	}
	if !on {
		return fmt.Sprintf("relay %s OFF", id), nil
	}
	if d > 0 {
		return fmt.Sprintf("relay %s ON for %s", id, d), nil
	}
	return fmt.Sprintf("relay %s ON", id), nil
}

func (r *Router) irrigate(_ context.Context, p protocol.Params) (string, error) {
	if r.relays == nil || r.irrigation == "" {
		return "", errors.New("no irrigation relay configured")
	}
	d, ok, err := seconds(p, "duration")
	if err != nil {
		return "", err
	}
	if !ok || d <= 0 {
		return "", errors.New("irrigate needs a positive duration in seconds")
	}
	if err := r.relays.Set(r.irrigation, true, r.now(), d); err != nil {
		return "", err
	}
	return fmt.Sprintf("irrigating for %s", d), nil
}

func (r *Router) setThreshold(_ context.Context, p protocol.Params) (string, error) {
	if r.thresholds == nil {
		return "", errors.New("thresholds are not supported")
	}
	name, err := p.String("sensor")
	if err != nil {
		return "", err
	}
	if _, ok := sensor.Find(r.sensors, name); !ok {
		return "", fmt.Errorf("unknown sensor %q", name)
	}
	var l Limit
	for key, dst := range map[string]**float64{"min": &l.Min, "max": &l.Max} {
		if !p.Has(key) {
			continue
		}
		v, err := p.Float(key)
		if err != nil {
			return "", err
		}
		*dst = &v
	}
	if err := r.thresholds.Set(name, l); err != nil {
		return "", err
	}
	if l.Min == nil && l.Max == nil {
		return fmt.Sprintf("threshold for %s cleared", name), nil
	}
	return fmt.Sprintf("threshold for %s set", name), nil
}

func (r *Router) updateInterval(_ context.Context, p protocol.Params) (string, error) {
	if r.interval == nil {
		return "", errors.New("interval updates are not supported")
	}
	d, ok, err := seconds(p, "interval")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New(`missing parameter "interval"`)
	}
	if err := r.interval.SetSendInterval(d); err != nil {
		return "", err
	}
	return fmt.Sprintf("send interval set to %s", d), nil
}

func (r *Router) calibrateSensor(_ context.Context, p protocol.Params) (string, error) {
	name, err := p.String("sensor")
	if err != nil {
		return "", err
	}
	s, ok := sensor.Find(r.sensors, name)
	if !ok {
		return "", fmt.Errorf("unknown sensor %q", name)
	}
	c, ok := s.(sensor.Calibrator)
	if !ok {
		return "", fmt.Errorf("sensor %s cannot be calibrated", name)
	}
	values := p.Floats()
	delete(values, "sensor")
	if len(values) == 0 {
		return "", fmt.Errorf("no calibration values for %s", name)
	}
	if err := c.Calibrate(values); err != nil {
		return "", err
	}
	r.log.Infow("sensor calibrated", map[string]any{"sensor": name, "values": values})
	return fmt.Sprintf("sensor %s calibrated", name), nil
}

func (r *Router) restartDevice(context.Context, protocol.Params) (string, error) {
	if r.restart == nil {
		return "", errors.New("restart is not supported")
	}
	r.restart()
	return "restarting", nil
}
