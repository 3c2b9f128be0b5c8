package client

import (
	"context"
	"errors"
	"net"
)

// ErrUnavailable is wrapped by Query errors meaning the model cannot answer
// at all: the server is unreachable or does not serve the requested model.
// Other errors concern a single request.
var ErrUnavailable = errors.New("vision model unavailable")

// VisionClient sends a prompt and a base64 encoded image to a vision model
// and returns the raw text of its answer.
type VisionClient interface {
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}

// IsDialError reports whether err comes from failing to connect, such as a
// refused connection or an unresolvable host.
func IsDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
