package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// EncodeTelemetry serializes t. Non-finite sensor values are moved to Faults
// instead of being encoded.
func EncodeTelemetry(t Telemetry) []byte {
	clean := t
	clean.Sensors = make(map[string]Decimal, len(t.Sensors))
	clean.Faults = append([]string(nil), t.Faults...)
	for name, v := range t.Sensors {
		if !finite(float64(v)) {
			clean.Faults = append(clean.Faults, name)
			continue
		}
		clean.Sensors[name] = v
	}
	if clean.BatteryVoltage != nil && !finite(float64(*clean.BatteryVoltage)) {
		clean.BatteryVoltage = nil
	}
	sort.Strings(clean.Faults)
	if clean.ProtocolVersion == "" {
		clean.ProtocolVersion = Version
	}
	return mustMarshal(clean)
}

// EncodeStatus serializes s.
func EncodeStatus(s Status) []byte {
	if s.ProtocolVersion == "" {
		s.ProtocolVersion = Version
	}
	return mustMarshal(s)
}

// EncodeCommandResponse serializes r.
func EncodeCommandResponse(r Response) []byte {
	return mustMarshal(r)
}

// EncodeCommand serializes c the way a conformant command producer does.
func EncodeCommand(c Command) []byte {
	return mustMarshal(c)
}

// DecodeCommand parses an inbound command frame. Any framing problem yields
// an error wrapping ErrMalformed: invalid UTF-8 or JSON, a payload that is
// not an object, wrongly typed fields, or a missing command name. Unknown
// fields are ignored.
func DecodeCommand(b []byte) (Command, error) {
	var raw struct {
		Command   *string        `json:"command"`
		RequestID *string        `json:"request_id"`
		Params    map[string]any `json:"params"`
	}
	if err := decodeObject(b, &raw); err != nil {
		return Command{}, err
	}
	if raw.Command == nil || strings.TrimSpace(*raw.Command) == "" {
		return Command{}, fmt.Errorf("%w: missing command", ErrMalformed)
	}
	cmd := Command{Name: *raw.Command, Params: Params(raw.Params)}
	if raw.RequestID != nil {
		cmd.RequestID = *raw.RequestID
	}
	return cmd, nil
}

// DecodeResponse parses a command response, as read by command issuers.
func DecodeResponse(b []byte) (Response, error) {
	var r Response
	if err := decodeObject(b, &r); err != nil {
		return Response{}, err
	}
	if r.RequestID == "" {
		return Response{}, fmt.Errorf("%w: missing request_id", ErrMalformed)
	}
	return r, nil
}

// DecodeTelemetry parses a telemetry payload.
func DecodeTelemetry(b []byte) (Telemetry, error) {
	var t Telemetry
	if err := decodeObject(b, &t); err != nil {
		return Telemetry{}, err
	}
	return t, nil
}

// DecodeStatus parses a status payload.
func DecodeStatus(b []byte) (Status, error) {
	var s Status
	if err := decodeObject(b, &s); err != nil {
		return Status{}, err
	}
	return s, nil
}

// UnmarshalJSON implements json.Unmarshaler so that decoded telemetry keeps
// the Decimal type.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*d = Decimal(f)
	return nil
}

func decodeObject(b []byte, out any) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if !utf8.Valid(trimmed) {
		return fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// mustMarshal is only used on the message structs of this package. They hold
// strings, integers and finite Decimals, which always encode.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: encode %T: %v", v, err))
	}
	return b
}
