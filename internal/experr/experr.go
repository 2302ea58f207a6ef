package experr

import (
	"errors"
	"fmt"
)

// #region kinds
// ErrConfig marks malformed experiment definitions. Raised immediately, never retried.
var ErrConfig = errors.New("configuration error")

// ErrLifecycle marks calls made out of lifecycle order (update before start, reentrant runs).
var ErrLifecycle = errors.New("lifecycle error")

// #endregion kinds

// #region constructors
// Configf returns an error wrapping ErrConfig.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Lifecyclef returns an error wrapping ErrLifecycle.
func Lifecyclef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLifecycle, fmt.Sprintf(format, args...))
}

// #endregion constructors
