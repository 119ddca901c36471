package intent

import (
	"context"
	"errors"
)

// ErrRateLimit is returned by a Provider when the upstream LLM API reports a
// rate-limiting condition.  The classifier treats it like any other provider
// failure and falls back to the default lookup, but keeps the distinction for
// logging.
var ErrRateLimit = errors.New("intent: upstream rate limit exceeded")

// Provider is the opaque text-to-JSON classification service consulted when
// no deterministic rule matches.  Implementations return the raw JSON text
// produced by the model; the classifier owns validation and decoding, so a
// provider never needs to understand the Query shape.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	Classify(ctx context.Context, text string) (string, error)
}
