package bridge

import (
	"context"

	"github.com/kilianp07/farmbridge/core/protocol"
)

// Handler executes decoded commands. It runs synchronously inside the
// scheduler tick. A nil error produces a success response carrying the
// returned message; a non-nil error produces an error response carrying the
// error text.
type Handler interface {
	HandleCommand(ctx context.Context, cmd protocol.Command) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd protocol.Command) (string, error)

func (f HandlerFunc) HandleCommand(ctx context.Context, cmd protocol.Command) (string, error) {
	return f(ctx, cmd)
}
