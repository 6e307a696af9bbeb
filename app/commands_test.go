package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/farmbridge/core/actuator"
	"github.com/kilianp07/farmbridge/core/protocol"
	"github.com/kilianp07/farmbridge/core/sensor"
	"github.com/kilianp07/farmbridge/infra/hal/sim"
)

var t0 = time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)

type mockInterval struct{ mock.Mock }

func (m *mockInterval) SetSendInterval(d time.Duration) error {
	return m.Called(d).Error(0)
}

type routerFixture struct {
	board    *sim.Board
	relays   *actuator.Bank
	soil     *sensor.SoilMoisture
	interval *mockInterval
	restarts int
	router   *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{board: sim.NewBoard(sim.Config{Analog: map[int]int{34: 2800}}), interval: &mockInterval{}}
	t.Cleanup(f.board.Close)
	var err error
	f.relays, err = actuator.NewBank(f.board, []actuator.RelayConfig{{ID: "pump", Pin: 5}, {ID: "fan", Pin: 6}}, nil)
	require.NoError(t, err)
	in, err := f.board.Analog(34)
	require.NoError(t, err)
	f.soil = sensor.NewSoilMoisture("soil", in, 1)
	lux, err := f.board.Lux(0x23)
	require.NoError(t, err)

	f.router = NewRouter(RouterDeps{
		Relays:          f.relays,
		IrrigationRelay: "pump",
		Sensors:         []sensor.Sensor{f.soil, sensor.NewDigitalLight("light", lux)},
		Thresholds:      NewThresholds("dev-1", nil, nil),
		Interval:        f.interval,
		Restart:         func() { f.restarts++ },
		Now:             func() time.Time { return t0 },
	})
	return f
}

func (f *routerFixture) run(name string, p protocol.Params) (string, error) {
	return f.router.HandleCommand(context.Background(), protocol.Command{Name: name, RequestID: "r1", Params: p})
}

func TestRouter_SetRelay(t *testing.T) {
	f := newRouterFixture(t)

	msg, err := f.run(CmdSetRelay, protocol.Params{"relay_id": "pump", "state": "ON", "duration": 30.0})
	require.NoError(t, err)
	assert.Equal(t, "relay pump ON for 30s", msg)
	assert.True(t, f.board.OutputLevel(5))
	assert.Equal(t, t0.Add(30*time.Second), f.relays.States()[0].OffAt)

	msg, err = f.run(CmdSetRelay, protocol.Params{"relay_id": "pump", "state": "off"})
	require.NoError(t, err)
	assert.Equal(t, "relay pump OFF", msg)
	assert.False(t, f.board.OutputLevel(5))

	msg, err = f.run(CmdSetRelay, protocol.Params{"relay_id": "fan", "state": "ON"})
	require.NoError(t, err)
	assert.Equal(t, "relay fan ON", msg)
	assert.True(t, f.relays.States()[1].OffAt.IsZero())
}

func TestRouter_SetRelayRejectsBadParams(t *testing.T) {
	f := newRouterFixture(t)
	cases := map[string]protocol.Params{
		"missing relay":    {"state": "ON"},
		"missing state":    {"relay_id": "pump"},
		"bad state":        {"relay_id": "pump", "state": "BLINK"},
		"unknown relay":    {"relay_id": "valve", "state": "ON"},
		"negative seconds": {"relay_id": "pump", "state": "ON", "duration": -1.0},
		"text duration":    {"relay_id": "pump", "state": "ON", "duration": "soon"},
		"fractional id":    {"relay_id": 1.5, "state": "ON"},
		"bool id":          {"relay_id": true, "state": "ON"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.run(CmdSetRelay, p)
			assert.Error(t, err)
			assert.False(t, f.board.OutputLevel(5))
		})
	}
	_, err := f.run(CmdSetRelay, protocol.Params{"relay_id": "valve", "state": "ON"})
	assert.ErrorIs(t, err, actuator.ErrUnknownRelay)
}

func TestRouter_SetRelayNumericID(t *testing.T) {
	board := sim.NewBoard(sim.Config{})
	t.Cleanup(board.Close)
	relays, err := actuator.NewBank(board, []actuator.RelayConfig{{ID: "1", Pin: 5}, {ID: "2", Pin: 6}}, nil)
	require.NoError(t, err)
	r := NewRouter(RouterDeps{Relays: relays, Now: func() time.Time { return t0 }})

	cmd, err := protocol.DecodeCommand([]byte(`{"command":"set_relay","request_id":"r1","params":{"relay_id":1,"state":"ON"}}`))
	require.NoError(t, err)
	msg, err := r.HandleCommand(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, "relay 1 ON", msg)
	assert.True(t, board.OutputLevel(5))

	msg, err = r.HandleCommand(context.Background(), protocol.Command{Name: CmdSetRelay, Params: protocol.Params{"relay_id": "2", "state": "ON"}})
	require.NoError(t, err)
	assert.Equal(t, "relay 2 ON", msg)
	assert.True(t, board.OutputLevel(6))

	_, err = r.HandleCommand(context.Background(), protocol.Command{Name: CmdSetRelay, Params: protocol.Params{"relay_id": 7.0, "state": "ON"}})
	assert.ErrorIs(t, err, actuator.ErrUnknownRelay)
}

func TestRouter_Irrigate(t *testing.T) {
	f := newRouterFixture(t)

	_, err := f.run(CmdIrrigate, protocol.Params{})
	assert.Error(t, err)
	_, err = f.run(CmdIrrigate, protocol.Params{"duration": 0.0})
	assert.Error(t, err)

	msg, err := f.run(CmdIrrigate, protocol.Params{"duration": "90"})
	require.NoError(t, err)
	assert.Equal(t, "irrigating for 1m30s", msg)
	assert.True(t, f.board.OutputLevel(5))

	assert.Empty(t, f.relays.Tick(t0.Add(89*time.Second)))
	assert.Equal(t, []string{"pump"}, f.relays.Tick(t0.Add(90*time.Second)))
	assert.False(t, f.board.OutputLevel(5))
}

func TestRouter_IrrigateWithoutRelay(t *testing.T) {
	r := NewRouter(RouterDeps{})
	_, err := r.HandleCommand(context.Background(), protocol.Command{Name: CmdIrrigate, Params: protocol.Params{"duration": 5.0}})
	assert.EqualError(t, err, "no irrigation relay configured")
}

func TestRouter_SetThreshold(t *testing.T) {
	f := newRouterFixture(t)

	msg, err := f.run(CmdSetThreshold, protocol.Params{"sensor": "soil", "min": 20.0, "max": 80.0})
	require.NoError(t, err)
	assert.Equal(t, "threshold for soil set", msg)
	l := f.router.thresholds.Limits()["soil"]
	require.NotNil(t, l.Min)
	require.NotNil(t, l.Max)
	assert.Equal(t, 20.0, *l.Min)
	assert.Equal(t, 80.0, *l.Max)

	_, err = f.run(CmdSetThreshold, protocol.Params{"sensor": "soil", "min": 90.0, "max": 10.0})
	assert.Error(t, err)
	_, err = f.run(CmdSetThreshold, protocol.Params{"sensor": "ghost", "min": 1.0})
	assert.EqualError(t, err, `unknown sensor "ghost"`)

	msg, err = f.run(CmdSetThreshold, protocol.Params{"sensor": "soil"})
	require.NoError(t, err)
	assert.Equal(t, "threshold for soil cleared", msg)
	assert.Empty(t, f.router.thresholds.Limits())
}

func TestRouter_UpdateInterval(t *testing.T) {
	f := newRouterFixture(t)

	f.interval.On("SetSendInterval", 10*time.Second).Return(nil).Once()
	f.interval.On("SetSendInterval", time.Duration(0)).Return(errors.New("send interval must be positive")).Once()

	msg, err := f.run(CmdUpdateInterval, protocol.Params{"interval": 10.0})
	require.NoError(t, err)
	assert.Equal(t, "send interval set to 10s", msg)

	_, err = f.run(CmdUpdateInterval, protocol.Params{})
	assert.Error(t, err)

	_, err = f.run(CmdUpdateInterval, protocol.Params{"interval": 0.0})
	assert.EqualError(t, err, "send interval must be positive")
	f.interval.AssertExpectations(t)
}

func TestRouter_CalibrateSensor(t *testing.T) {
	f := newRouterFixture(t)
	before := f.soil.Read()
	require.True(t, before.Valid)

	msg, err := f.run(CmdCalibrateSensor, protocol.Params{"sensor": "soil", "dry": 3000.0, "wet": 2000.0})
	require.NoError(t, err)
	assert.Equal(t, "sensor soil calibrated", msg)
	after := f.soil.Read()
	require.True(t, after.Valid)
	assert.InDelta(t, 20, after.Value, 5)

	_, err = f.run(CmdCalibrateSensor, protocol.Params{"sensor": "light", "offset": 1.0})
	assert.EqualError(t, err, "sensor light cannot be calibrated")
	_, err = f.run(CmdCalibrateSensor, protocol.Params{"sensor": "soil"})
	assert.EqualError(t, err, "no calibration values for soil")
	_, err = f.run(CmdCalibrateSensor, protocol.Params{"sensor": "soil", "dry": 2000.0, "wet": 2000.0})
	assert.Error(t, err)
}

func TestRouter_Restart(t *testing.T) {
	f := newRouterFixture(t)
	msg, err := f.run(CmdRestart, nil)
	require.NoError(t, err)
	assert.Equal(t, "restarting", msg)
	assert.Equal(t, 1, f.restarts)
}

func TestRouter_UnknownCommand(t *testing.T) {
	f := newRouterFixture(t)
	_, err := f.run("self_destruct", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.EqualError(t, err, "unknown command: self_destruct")
}
