package ai

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
	ErrUnsupportedMedia    = errors.New("media type not supported by provider")
)

// Classify maps a provider failure onto the package sentinels so callers can
// tell a slow backend from a broken one when logging degradations. Errors
// already carrying a sentinel pass through unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrInferenceTimeout),
		errors.Is(err, ErrInvalidResponse),
		errors.Is(err, ErrUnsupportedMedia):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}
