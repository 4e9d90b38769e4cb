package cache

import "errors"

var (
	// ErrInvalidArgument is returned by Upsert for nil values.
	// Absence cannot be cached; wrap optional results in a value type instead.
	ErrInvalidArgument = errors.New("cache: invalid argument")

	// ErrNotFound is returned by Fetch when the key is absent.
	ErrNotFound = errors.New("cache: key not found")

	// ErrUnavailable means a scavenge cycle could not acquire its partition
	// within ScavengeLockTimeout. It never reaches foreground callers.
	ErrUnavailable = errors.New("cache: partition unavailable")

	// ErrClosed is returned by Upsert after Close.
	ErrClosed = errors.New("cache: closed")

	// ErrInvalidOptions wraps Options validation failures.
	ErrInvalidOptions = errors.New("cache: invalid options")
)
