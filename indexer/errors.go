package indexer

import (
	"errors"
	"fmt"
)

// ExternalIndexError wraps a failure reported by the storage side of index
// construction. The inner error is carried opaquely rather than inspected.
type ExternalIndexError struct {
	Err error
}

func (e *ExternalIndexError) Error() string {
	return fmt.Sprintf("external index error: %v", e.Err)
}

func (e *ExternalIndexError) Unwrap() error {
	return e.Err
}

// IsExternalIndexError checks if an error is an ExternalIndexError anywhere
// in its chain.
func IsExternalIndexError(err error) bool {
	var target *ExternalIndexError
	return errors.As(err, &target)
}
