package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMap(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestEncodeTelemetry(t *testing.T) {
	batt := Decimal(3.7)
	b := EncodeTelemetry(Telemetry{
		DeviceID:       "dev-1",
		Timestamp:      42,
		Sensors:        map[string]Decimal{"temperature": 24.5, "humidity": 61},
		BatteryVoltage: &batt,
		RSSI:           -67,
	})
	m := decodeMap(t, b)
	assert.Equal(t, "dev-1", m["device_id"])
	assert.Equal(t, float64(42), m["timestamp"])
	assert.Equal(t, Version, m["protocol_version"])
	assert.Equal(t, 3.7, m["battery_voltage"])
	assert.Equal(t, float64(-67), m["rssi"])
	assert.Equal(t, map[string]any{"temperature": 24.5, "humidity": float64(61)}, m["sensors"])
	assert.NotContains(t, m, "faults")
}

func TestEncodeTelemetryOmitsBatteryAndKeepsEmptySensors(t *testing.T) {
	m := decodeMap(t, EncodeTelemetry(Telemetry{DeviceID: "dev-1"}))
	assert.NotContains(t, m, "battery_voltage")
	assert.Equal(t, map[string]any{}, m["sensors"])
	assert.Contains(t, m, "rssi")
}

func TestEncodeTelemetryMovesNonFiniteToFaults(t *testing.T) {
	nan := Decimal(math.NaN())
	b := EncodeTelemetry(Telemetry{
		DeviceID:       "dev-1",
		Sensors:        map[string]Decimal{"ph": Decimal(math.Inf(1)), "tds": 310},
		BatteryVoltage: &nan,
		Faults:         []string{"soil_moisture"},
	})
	m := decodeMap(t, b)
	assert.Equal(t, map[string]any{"tds": float64(310)}, m["sensors"])
	assert.Equal(t, []any{"ph", "soil_moisture"}, m["faults"])
	assert.NotContains(t, m, "battery_voltage")
}

func TestDecimalNeverUsesExponent(t *testing.T) {
	b, err := json.Marshal(map[string]Decimal{"a": 0.0000001, "b": 1e21, "c": 61})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0.0000001,"b":1000000000000000000000,"c":61}`, string(b))
	assert.Contains(t, string(b), `"c":61}`)
	assert.NotContains(t, string(b), "e")
}

func TestEncodeStatus(t *testing.T) {
	m := decodeMap(t, EncodeStatus(Status{
		DeviceID: "dev-1", Status: StatusOnline, Uptime: 12, FirmwareVersion: "1.2.0", FreeMemory: 2048,
	}))
	assert.Equal(t, "online", m["status"])
	assert.Equal(t, float64(12), m["uptime"])
	assert.Equal(t, "1.2.0", m["firmware_version"])
	assert.Equal(t, float64(2048), m["free_memory"])
	assert.Equal(t, Version, m["protocol_version"])
}

func TestEncodeCommandResponse(t *testing.T) {
	b := EncodeCommandResponse(Response{RequestID: "r1", Status: ResponseSuccess, Message: "ok", Timestamp: 9})
	assert.JSONEq(t, `{"request_id":"r1","status":"success","message":"ok","timestamp":9}`, string(b))
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"command":"irrigate","request_id":"r1","params":{"duration":30}}`))
	require.NoError(t, err)
	assert.Equal(t, "irrigate", cmd.Name)
	assert.Equal(t, "r1", cmd.RequestID)
	assert.True(t, cmd.Tracked())
	d, err := cmd.Params.Int("duration")
	require.NoError(t, err)
	assert.Equal(t, 30, d)
}

func TestDecodeCommandIgnoresUnknownFields(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"command":"restart","issued_by":"ops","priority":3}`))
	require.NoError(t, err)
	assert.Equal(t, "restart", cmd.Name)
	assert.False(t, cmd.Tracked())
	assert.Empty(t, cmd.Params)
}

func TestDecodeCommandMalformed(t *testing.T) {
	cases := map[string]string{
		"truncated":       `{"command":"irrigate","request_id":"r1","par`,
		"empty":           ``,
		"whitespace":      "  \n",
		"array":           `[{"command":"x"}]`,
		"string":          `"irrigate"`,
		"missing command": `{"request_id":"r1"}`,
		"blank command":   `{"command":"  "}`,
		"numeric command": `{"command":5}`,
		"params array":    `{"command":"x","params":[1,2]}`,
		"invalid utf8":    "{\"command\":\"\xff\xfe\"}",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestCommandRoundTrip(t *testing.T) {
	in := []Command{
		{Name: "irrigate", RequestID: "r1", Params: Params{"duration": float64(30)}},
		{Name: "set_relay", RequestID: "r2", Params: Params{"relay_id": float64(1), "state": "ON"}},
		{Name: "set_threshold", RequestID: "r3", Params: Params{"sensor": "ph", "min": 5.5, "max": 7.25}},
		{Name: "restart"},
	}
	for _, c := range in {
		out, err := DecodeCommand(EncodeCommand(c))
		require.NoError(t, err)
		assert.Equal(t, c.Name, out.Name)
		assert.Equal(t, c.RequestID, out.RequestID)
		if len(c.Params) == 0 {
			assert.Empty(t, out.Params)
		} else {
			assert.Equal(t, c.Params, out.Params)
		}
	}
}

func TestDecodeResponse(t *testing.T) {
	r, err := DecodeResponse([]byte(`{"request_id":"r1","status":"error","message":"no relay","timestamp":3,"extra":true}`))
	require.NoError(t, err)
	assert.False(t, r.OK())
	assert.Equal(t, "no relay", r.Message)

	_, err = DecodeResponse([]byte(`{"status":"success"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeTelemetryAndStatus(t *testing.T) {
	tel, err := DecodeTelemetry(EncodeTelemetry(Telemetry{DeviceID: "d", Sensors: map[string]Decimal{"ph": 6.5}}))
	require.NoError(t, err)
	assert.Equal(t, Decimal(6.5), tel.Sensors["ph"])

	st, err := DecodeStatus(EncodeStatus(Status{DeviceID: "d", Status: StatusOffline}))
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, st.Status)
}

func TestParams(t *testing.T) {
	p := Params{"duration": "15", "ratio": 0.5, "state": "ON", "flag": true}
	d, err := p.Int("duration")
	require.NoError(t, err)
	assert.Equal(t, 15, d)

	_, err = p.Int("ratio")
	assert.Error(t, err)
	_, err = p.Float("flag")
	assert.Error(t, err)
	_, err = p.Float("missing")
	assert.Error(t, err)

	s, err := p.String("state")
	require.NoError(t, err)
	assert.Equal(t, "ON", s)
	_, err = p.String("ratio")
	assert.Error(t, err)

	assert.Equal(t, map[string]float64{"duration": 15, "ratio": 0.5}, p.Floats())
	assert.True(t, p.Has("flag"))
}
