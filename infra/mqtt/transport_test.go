package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/farmbridge/core/transport"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

var creds = transport.Credentials{ClientID: "dev-1", Username: "dev-1", Password: "secret"}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, AuthMethod: "both", ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}

	caOnly, err := Config{UseTLS: true, CABundle: ca}.LoadTLSConfig()
	require.NoError(t, err)
	assert.Empty(t, caOnly.Certificates)

	_, err = Config{UseTLS: true, AuthMethod: "certificate", CABundle: ca}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptions(t *testing.T) {
	will := &transport.Will{Topic: "farm/dev-1/status", Payload: []byte(`{"status":"offline"}`), QoS: transport.AtLeastOnce, Retain: true}
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883"}, creds, will)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", opts.ClientID)
	assert.Equal(t, "dev-1", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.False(t, opts.AutoReconnect, "reconnection is driven by the bridge")
	assert.False(t, opts.ConnectRetry)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "farm/dev-1/status", opts.WillTopic)
	assert.Equal(t, `{"status":"offline"}`, string(opts.WillPayload))
	assert.True(t, opts.WillRetained)
	assert.Equal(t, byte(1), opts.WillQos)
	assert.Equal(t, defaultKeepAlive, time.Duration(opts.KeepAlive)*time.Second)

	certOnly, err := NewClientOptions(Config{Broker: "tcp://b:1883", AuthMethod: "certificate", TLSConfig: nil}, creds, nil)
	require.NoError(t, err)
	assert.Empty(t, certOnly.Password)
	assert.False(t, certOnly.WillEnabled)

	_, err = NewClientOptions(Config{}, creds, nil)
	assert.Error(t, err)
}

func TestTransportConnectSubscribePublish(t *testing.T) {
	mc := &mockClient{}
	defer useMock(mc)()
	tr := NewTransport(Config{Broker: "tcp://localhost:1883"})
	assert.False(t, tr.IsConnected())
	assert.ErrorIs(t, tr.Publish("x", nil, 0, false), transport.ErrNotConnected)

	require.NoError(t, tr.Connect(context.Background(), creds, nil))
	assert.True(t, tr.IsConnected())
	assert.False(t, mc.opts.AutoReconnect)

	require.NoError(t, tr.Subscribe("farm/dev-1/command", transport.AtLeastOnce))
	require.Len(t, mc.subscribed, 1)
	assert.Equal(t, byte(1), mc.subscribed[0].qos)

	require.NoError(t, tr.Publish("farm/dev-1/status", []byte("online"), transport.AtLeastOnce, true))
	require.Len(t, mc.published, 1)
	assert.Equal(t, publication{"farm/dev-1/status", 1, true, []byte("online")}, mc.published[0])

	tr.Disconnect()
	assert.False(t, tr.IsConnected())
	assert.Equal(t, 1, mc.disconnects)
}

func TestTransportConnectFailure(t *testing.T) {
	mc := &mockClient{connectErr: errors.New("bad user name or password")}
	defer useMock(mc)()
	tr := NewTransport(Config{Broker: "tcp://localhost:1883"})
	err := tr.Connect(context.Background(), creds, nil)
	assert.ErrorIs(t, err, transport.ErrTransportUnavailable)
	assert.False(t, tr.IsConnected())
}

func TestTransportConnectIsTimeBoxed(t *testing.T) {
	mc := &mockClient{connectHang: true}
	defer useMock(mc)()
	tr := NewTransport(Config{Broker: "tcp://localhost:1883"})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := tr.Connect(ctx, creds, nil)
	assert.ErrorIs(t, err, transport.ErrTransportUnavailable)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, mc.disconnects, "abandoned attempt is torn down")
}

func TestTransportSubscribeTimeout(t *testing.T) {
	mc := &mockClient{subHang: true}
	defer useMock(mc)()
	tr := NewTransport(Config{Broker: "tcp://localhost:1883", OperationTimeoutMS: 1})
	require.NoError(t, tr.Connect(context.Background(), creds, nil))
	assert.ErrorIs(t, tr.Subscribe("farm/dev-1/command", 1), transport.ErrSubscribeFailed)
}

func TestTransportPublishError(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail")}}
	defer useMock(mc)()
	tr := NewTransport(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, tr.Connect(context.Background(), creds, nil))
	err := tr.Publish("farm/dev-1/telemetry", []byte("{}"), 0, false)
	assert.ErrorIs(t, err, transport.ErrPublishFailed)
	assert.Len(t, mc.published, 1, "no inline retry")
}

func TestTransportDrainBuffersInbound(t *testing.T) {
	mc := &mockClient{}
	defer useMock(mc)()
	tr := NewTransport(Config{Broker: "tcp://localhost:1883", InboundBuffer: 2})
	require.NoError(t, tr.Connect(context.Background(), creds, nil))
	require.NoError(t, tr.Subscribe("farm/dev-1/command", 1))

	payload := []byte(`{"command":"restart"}`)
	mc.deliver("farm/dev-1/command", payload)
	payload[0] = 'X'
	mc.deliver("farm/dev-1/command", []byte("2"))
	mc.deliver("farm/dev-1/command", []byte("3"))
	assert.Equal(t, uint64(1), tr.Dropped())

	var got []transport.Message
	assert.Equal(t, 2, tr.Drain(func(m transport.Message) { got = append(got, m) }))
	require.Len(t, got, 2)
	assert.Equal(t, "farm/dev-1/command", got[0].Topic)
	assert.Equal(t, `{"command":"restart"}`, string(got[0].Payload), "payload is copied")
	assert.False(t, got[0].Received.IsZero())
	assert.Equal(t, 0, tr.Drain(func(transport.Message) { t.Fatal("unexpected frame") }))
}

func TestTransportDetectsDrop(t *testing.T) {
	mc := &mockClient{}
	defer useMock(mc)()
	tr := NewTransport(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, tr.Connect(context.Background(), creds, nil))
	mc.mu.Lock()
	mc.connected = false
	mc.mu.Unlock()
	assert.False(t, tr.IsConnected())
	assert.ErrorIs(t, tr.Publish("t", nil, 0, false), transport.ErrNotConnected)
}
