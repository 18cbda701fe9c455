package exp

import "errors"

// Error implements errors unique to experience caches.
type Error struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap exposes the underlying error for errors.Is checks
func (e *Error) Unwrap() error {
	return e.Err
}

var errIncompatibleKey = errors.New("incompatible experience key")

var errNotReady = errors.New("cache not ready for reading")

var errEmptyCache = errors.New("cache empty")

// IsIncompatibleKey returns whether or not an error reports a write to
// an experience field that was not pre-declared in the cache schema.
func IsIncompatibleKey(err error) bool {
	return errors.Is(err, errIncompatibleKey)
}

// IsNotReady returns whether or not an error reports a read from a
// cache that has not accumulated enough experience to be read.
func IsNotReady(err error) bool {
	return errors.Is(err, errNotReady)
}

// IsEmptyCache returns whether or not an error reports that a cache
// holds no experience at all.
func IsEmptyCache(err error) bool {
	return errors.Is(err, errEmptyCache)
}
