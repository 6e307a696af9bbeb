package protocol

import "errors"

// ErrMalformed is returned when an inbound payload cannot be decoded into the
// expected schema. Callers drop the frame.
var ErrMalformed = errors.New("protocol: malformed payload")
