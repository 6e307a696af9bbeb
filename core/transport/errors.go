package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable is returned when a connect attempt fails or
	// times out. The bridge retries it on a fixed schedule.
	ErrTransportUnavailable = errors.New("transport: unavailable")

	// ErrPublishFailed is returned when a publish cannot be delivered to the
	// broker.
	ErrPublishFailed = errors.New("transport: publish failed")

	// ErrNotConnected is returned by sends attempted while disconnected. It
	// wraps ErrPublishFailed.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrPublishFailed)

	// ErrSubscribeFailed is returned when the broker rejects a subscription.
	ErrSubscribeFailed = errors.New("transport: subscribe failed")
)
