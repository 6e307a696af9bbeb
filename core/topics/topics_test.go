package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForDevice(t *testing.T) {
	s := For("dev-1")
	assert.Equal(t, "farm/dev-1/telemetry", s.Telemetry)
	assert.Equal(t, "farm/dev-1/status", s.Status)
	assert.Equal(t, "farm/dev-1/command", s.Command)
	assert.Equal(t, "farm/dev-1/response", s.Response)
}

func TestDistinctDevicesShareNoTopic(t *testing.T) {
	ids := []string{"dev-1", "dev-2", "dev-10", "greenhouse-a", "a", "b"}
	seen := map[string]string{}
	for _, id := range ids {
		for _, topic := range For(id).All() {
			if owner, ok := seen[topic]; ok {
				t.Fatalf("topic %s shared by %s and %s", topic, owner, id)
			}
			seen[topic] = id
		}
	}
}

func TestStable(t *testing.T) {
	assert.Equal(t, For("dev-1"), For("dev-1"))
}

func TestDeviceID(t *testing.T) {
	id, ok := DeviceID("farm/dev-1/response")
	assert.True(t, ok)
	assert.Equal(t, "dev-1", id)

	for _, topic := range []string{"farm/", "other/dev-1/response", "farm//response", "farm/noslash"} {
		_, ok := DeviceID(topic)
		assert.False(t, ok, topic)
	}
}

func TestWildcard(t *testing.T) {
	assert.Equal(t, "farm/+/response", Wildcard("response"))
}
