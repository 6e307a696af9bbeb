// Package topics maps a device identity to the four protocol topics.
package topics

// Prefix is the root segment shared by every device topic.
const Prefix = "farm"

// Set holds the topics of one device. It is computed once when a bridge is
// built and never changes afterwards; a new device id means a new bridge.
type Set struct {
	Telemetry string `json:"telemetry"`
	Status    string `json:"status"`
	Command   string `json:"command"`
	Response  string `json:"response"`
}

// For returns the topic set of deviceID.
func For(deviceID string) Set {
	base := Prefix + "/" + deviceID + "/"
	return Set{
		Telemetry: base + "telemetry",
		Status:    base + "status",
		Command:   base + "command",
		Response:  base + "response",
	}
}

// All returns the topics in telemetry, status, command, response order.
func (s Set) All() []string {
	return []string{s.Telemetry, s.Status, s.Command, s.Response}
}

// Wildcard returns the subscription filter matching kind ("telemetry",
// "status", ...) across every device, e.g. farm/+/response.
func Wildcard(kind string) string {
	return Prefix + "/+/" + kind
}

// DeviceID extracts the device segment of a farm/<id>/<kind> topic. It
// returns false for topics outside the schema.
func DeviceID(topic string) (string, bool) {
	const head = Prefix + "/"
	if len(topic) <= len(head) || topic[:len(head)] != head {
		return "", false
	}
	rest := topic[len(head):]
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '/' {
			if i == 0 {
				return "", false
			}
			return rest[:i], true
		}
	}
	return "", false
}
