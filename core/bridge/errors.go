package bridge

import (
	"errors"

	"github.com/kilianp07/farmbridge/core/transport"
)

var (
	// ErrNoHandler is reported in the response to a command received before
	// any handler was registered.
	ErrNoHandler = errors.New("bridge: no command handler registered")

	// ErrNotConnected is returned by sends attempted outside the Connected
	// state. It wraps transport.ErrPublishFailed.
	ErrNotConnected = transport.ErrNotConnected

	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("bridge: invalid options")
)
