package mqtt

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/farmbridge/core/bridge"
	"github.com/kilianp07/farmbridge/core/protocol"
	"github.com/kilianp07/farmbridge/core/transport"
)

// TestIntegration drives a bridge against a real Mosquitto broker and talks
// to it through a Commander.
func TestIntegration(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %v", err)
		}
	}()

	// give broker time to fully start
	time.Sleep(500 * time.Millisecond)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	cfg := Config{Broker: fmt.Sprintf("tcp://%s:%s", host, port.Port())}

	b, err := bridge.New(bridge.Options{
		DeviceID:     "itest-1",
		Secret:       "secret",
		Transport:    NewTransport(cfg),
		SendInterval: time.Hour,
		Handler: bridge.HandlerFunc(func(_ context.Context, cmd protocol.Command) (string, error) {
			return "did " + cmd.Name, nil
		}),
	})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for b.State() != bridge.Connected {
		if time.Now().After(deadline) {
			t.Fatalf("bridge did not connect")
		}
		b.Tick(ctx, time.Now())
		time.Sleep(100 * time.Millisecond)
	}

	ops, err := NewCommander(cfg, transport.Credentials{}, transport.AtLeastOnce)
	if err != nil {
		t.Fatalf("commander: %v", err)
	}
	defer ops.Disconnect()

	reqID, err := ops.Send(ctx, "itest-1", "restart", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := ops.Wait(reqID, 5*time.Second)
		if err != nil {
			t.Errorf("wait: %v", err)
			return
		}
		if !res.OK() || res.Message != "did restart" {
			t.Errorf("unexpected response %+v", res)
		}
	}()

	for {
		select {
		case <-done:
			_ = b.Close(ctx, time.Now())
			return
		case <-time.After(50 * time.Millisecond):
			b.Tick(ctx, time.Now())
		}
	}
}
