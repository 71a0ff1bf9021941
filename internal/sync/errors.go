package sync

import (
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/transport"
)

// Result is the outcome of a read: the data and whether it came from the
// local cache instead of the network.
type Result[T any] struct {
	Data      T
	FromCache bool
}

// NoDataError is returned by a read when the network could not serve it and
// nothing is cached. Err is the network failure, or nil when the network was
// skipped because there is no connectivity.
type NoDataError struct {
	Resource string
	Key      string
	Err      error
}

func (e *NoDataError) Error() string {
	what := e.Resource
	if e.Key != "" {
		what += " " + e.Key
	}
	if e.Err == nil {
		return fmt.Sprintf("no cached %s and no connectivity", what)
	}
	return fmt.Sprintf("no cached %s: %v", what, e.Err)
}

func (e *NoDataError) Unwrap() error { return e.Err }

// IsNoData reports whether err is, or wraps, a NoDataError.
func IsNoData(err error) bool {
	var nd *NoDataError
	return errors.As(err, &nd)
}

// canFallBack reports whether a read failure may be answered from the cache.
// Decode errors are hard failures.
func canFallBack(err error) bool {
	var de *transport.DecodeError
	if errors.As(err, &de) {
		return false
	}
	return transport.IsFallbackEligible(err)
}
