package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/farmbridge/core/transport"
)

const (
	defaultKeepAlive         = 30 * time.Second
	defaultOperationTimeout  = 5 * time.Second
	defaultInboundBuffer     = 64
	defaultDisconnectQuiesce = 250 // milliseconds
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker string `json:"broker"`
	// AuthMethod is username_password (default), certificate or both.
	AuthMethod string `json:"auth_method"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	// KeepAliveSec drives the broker-side liveness check.
	KeepAliveSec int `json:"keep_alive_sec"`
	// OperationTimeoutMS bounds subscribe and publish acknowledgments.
	OperationTimeoutMS int `json:"operation_timeout_ms"`
	// InboundBuffer is the number of frames held between two drains.
	InboundBuffer int `json:"inbound_buffer"`
	// MaxRetries and BackoffMS control publish retries of the operator
	// Commander. The device transport never retries inline.
	MaxRetries int `json:"max_retries"`
	BackoffMS  int `json:"backoff_ms"`

	TLSConfig *tls.Config `json:"-"`
}

func (c Config) keepAlive() time.Duration {
	if c.KeepAliveSec <= 0 {
		return defaultKeepAlive
	}
	return time.Duration(c.KeepAliveSec) * time.Second
}

func (c Config) operationTimeout() time.Duration {
	if c.OperationTimeoutMS <= 0 {
		return defaultOperationTimeout
	}
	return time.Duration(c.OperationTimeoutMS) * time.Millisecond
}

func (c Config) inboundBuffer() int {
	if c.InboundBuffer <= 0 {
		return defaultInboundBuffer
	}
	return c.InboundBuffer
}

// NewClientOptions builds paho options for one connection. Automatic
// reconnection stays off: the bridge's connection state machine owns retries.
func NewClientOptions(cfg Config, creds transport.Credentials, will *transport.Will) (*paho.ClientOptions, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker url is required")
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(creds.ClientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(cfg.keepAlive())
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if creds.Username != "" {
			opts.SetUsername(creds.Username)
		}
		if creds.Password != "" {
			opts.SetPassword(creds.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if will != nil && will.Topic != "" {
		opts.SetBinaryWill(will.Topic, will.Payload, byte(will.QoS), will.Retain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
// Client certificates are only required for the certificate and both auth
// methods; a CA bundle alone verifies the broker.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.CABundle != "" {
		caBytes, err := os.ReadFile(c.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("read ca: no certificates in %s", c.CABundle)
		}
		cfg.RootCAs = pool
	}
	needCert := c.AuthMethod == "certificate" || c.AuthMethod == "both"
	if needCert && (c.ClientCert == "" || c.ClientKey == "") {
		return nil, fmt.Errorf("tls config requires client_cert and client_key for %s auth", c.AuthMethod)
	}
	if c.ClientCert != "" && c.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
