package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/farmbridge/config"
	"github.com/kilianp07/farmbridge/core/actuator"
	"github.com/kilianp07/farmbridge/core/bridge"
	"github.com/kilianp07/farmbridge/core/factory"
	"github.com/kilianp07/farmbridge/core/journal"
	"github.com/kilianp07/farmbridge/core/protocol"
	"github.com/kilianp07/farmbridge/core/topics"
	"github.com/kilianp07/farmbridge/core/transport"
	"github.com/kilianp07/farmbridge/infra/hal/sim"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Device: config.DeviceConfig{ID: "dev-1", Secret: "s3cret"},
		Board:  sim.Config{Analog: map[int]int{34: 2800}},
		Sensors: []factory.ModuleConfig{
			{Type: "soil_moisture", Conf: map[string]any{"name": "soil", "pin": 34}},
		},
		Relays:          []actuator.RelayConfig{{ID: "pump", Pin: 5}},
		IrrigationRelay: "pump",
		Journal:         journal.Config{Backend: "jsonl", Path: filepath.Join(t.TempDir(), "journal.jsonl")},
	}
	cfg.Bridge.TickIntervalMS = 1
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) (*Service, *transport.MockTransport, *fakeClock) {
	t.Helper()
	mt := transport.NewMockTransport()
	clk := &fakeClock{now: t0}
	svc, err := New(cfg, WithTransport(mt), WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, mt, clk
}

func command(t *testing.T, name, id string, p protocol.Params) []byte {
	t.Helper()
	return protocol.EncodeCommand(protocol.Command{Name: name, RequestID: id, Params: p})
}

func lastResponse(t *testing.T, mt *transport.MockTransport) protocol.Response {
	t.Helper()
	calls := mt.Published(topics.For("dev-1").Response)
	require.NotEmpty(t, calls)
	res, err := protocol.DecodeResponse(calls[len(calls)-1].Payload)
	require.NoError(t, err)
	return res
}

func TestService_StepConnectsAndPublishes(t *testing.T) {
	svc, mt, _ := newTestService(t, testConfig(t))
	set := topics.For("dev-1")

	r := svc.step(context.Background())
	assert.Equal(t, bridge.Connected, r.State)
	assert.True(t, r.TelemetrySent)
	assert.Equal(t, []string{"connect", "subscribe", "publish", "publish"}, mt.Ops())
	assert.Equal(t, "s3cret", mt.Creds[0].Password)
	require.NotNil(t, mt.LastWill)
	assert.Equal(t, set.Status, mt.LastWill.Topic)

	tel := mt.Published(set.Telemetry)
	require.Len(t, tel, 1)
	msg, err := protocol.DecodeTelemetry(tel[0].Payload)
	require.NoError(t, err)
	assert.Contains(t, msg.Sensors, "soil")

	snap := svc.Snapshot()
	assert.Equal(t, bridge.Connected, snap.State)
	assert.Equal(t, t0, snap.LastTelemetry)
	require.Len(t, snap.Readings, 1)
	assert.Equal(t, "soil", snap.Readings[0].Name)
	assert.Equal(t, "5s", snap.SendInterval)
}

func TestService_CommandsDriveRelaysAndJournal(t *testing.T) {
	cfg := testConfig(t)
	svc, mt, clk := newTestService(t, cfg)
	ctx := context.Background()
	svc.step(ctx)

	mt.Deliver(topics.For("dev-1").Command, command(t, CmdIrrigate, "irr-1", protocol.Params{"duration": 10.0}))
	svc.step(ctx)
	res := lastResponse(t, mt)
	assert.True(t, res.OK())
	assert.Equal(t, "irr-1", res.RequestID)
	assert.True(t, svc.board.OutputLevel(5))
	assert.True(t, svc.Snapshot().Relays[0].On)

	clk.Advance(10 * time.Second)
	svc.step(ctx)
	assert.False(t, svc.board.OutputLevel(5))
	assert.False(t, svc.Snapshot().Relays[0].On)

	mt.Deliver(topics.For("dev-1").Command, command(t, "dance", "bad-1", nil))
	svc.step(ctx)
	res = lastResponse(t, mt)
	assert.False(t, res.OK())
	assert.Equal(t, "unknown command: dance", res.Message)

	entries, err := svc.journal.Query(ctx, journal.Query{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, CmdIrrigate, entries[0].Command)
	assert.Equal(t, "success", entries[0].Status)
	assert.Equal(t, "error", entries[1].Status)
}

func TestService_UpdateIntervalAndThreshold(t *testing.T) {
	svc, mt, _ := newTestService(t, testConfig(t))
	ctx := context.Background()
	svc.step(ctx)

	cmdTopic := topics.For("dev-1").Command
	mt.Deliver(cmdTopic, command(t, CmdUpdateInterval, "iv-1", protocol.Params{"interval": 30.0}))
	mt.Deliver(cmdTopic, command(t, CmdSetThreshold, "th-1", protocol.Params{"sensor": "soil", "max": 10.0}))
	svc.step(ctx)

	assert.Equal(t, 30*time.Second, svc.Bridge().SendInterval())
	assert.Equal(t, "30s", svc.Snapshot().SendInterval)
	require.Contains(t, svc.Snapshot().Thresholds, "soil")

	assert.NoError(t, svc.Bridge().SendTelemetry(t0))
	breaches := svc.thresholds.Check(t0, svc.readings)
	assert.Len(t, breaches, 1)
}

func TestService_RunStopsOnRestart(t *testing.T) {
	svc, mt, _ := newTestService(t, testConfig(t))
	set := topics.For("dev-1")
	mt.Deliver(set.Command, command(t, CmdRestart, "rs-1", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := svc.Run(ctx)
	assert.ErrorIs(t, err, ErrRestart)

	res := lastResponse(t, mt)
	assert.True(t, res.OK())
	assert.Equal(t, "restarting", res.Message)

	status := mt.Published(set.Status)
	require.Len(t, status, 2)
	last, err := protocol.DecodeStatus(status[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOffline, last.Status)
	assert.Equal(t, "disconnect", mt.Ops()[len(mt.Ops())-1])
}

func TestService_RunStopsOnCancel(t *testing.T) {
	svc, mt, _ := newTestService(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.Snapshot().State == bridge.Connected }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, mt.IsConnected())
	assert.NoError(t, svc.Close())
}

func TestNew_RejectsBrokenSensorConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sensors = append(cfg.Sensors, factory.ModuleConfig{Type: "soil_moisture", Conf: map[string]any{"bogus": 1}})
	_, err := New(cfg, WithTransport(transport.NewMockTransport()))
	assert.Error(t, err)
}
