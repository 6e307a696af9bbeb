package amqp

import "time"

const (
	defaultURL              = "amqp://localhost:5672/"
	defaultExchange         = "farm"
	defaultInboundBuffer    = 64
	defaultOperationTimeout = 5 * time.Second
)

// Config defines the RabbitMQ connection parameters.
type Config struct {
	URL string `json:"url"`
	// Exchange is the topic exchange carrying every farm topic.
	Exchange           string `json:"exchange"`
	InboundBuffer      int    `json:"inbound_buffer"`
	OperationTimeoutMS int    `json:"operation_timeout_ms"`
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = defaultURL
	}
	if c.Exchange == "" {
		c.Exchange = defaultExchange
	}
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = defaultInboundBuffer
	}
}

func (c Config) operationTimeout() time.Duration {
	if c.OperationTimeoutMS <= 0 {
		return defaultOperationTimeout
	}
	return time.Duration(c.OperationTimeoutMS) * time.Millisecond
}
