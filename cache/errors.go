package cache

import (
	"github.com/jmgilman/go/errors"
)

var (
	// ErrInvalidConfig is returned by New and the strategy setters for
	// invalid capacity or a missing strategy. Never returned at runtime.
	ErrInvalidConfig = errors.New(errors.CodeInvalidConfig, "cache: invalid configuration")

	// ErrCacheBusy is returned by Put/PutContext/Evict when acquiring an
	// application lock on the eviction path exceeded LockTimeout or the
	// caller's context. It is retryable; the triggering entry stays inserted.
	ErrCacheBusy = errors.New(errors.CodeTimeout, "cache: eviction lock busy")

	// ErrClosed is returned by mutating operations after Close.
	ErrClosed = errors.New(errors.CodeUnavailable, "cache: closed")

	// ErrNoLoader is returned by GetOrLoad when no Loader was configured.
	ErrNoLoader = errors.New(errors.CodeInvalidConfig, "cache: no Loader provided")
)

func invalidConfig(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, errors.CodeInvalidConfig, format, args...)
}
