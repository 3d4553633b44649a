package core

import (
	"errors"
	"fmt"
)

// UnsupportedCompressionError reports a CompressionType with no registered
// Compressor. Dispatch over compression codecs is closed; an unknown code
// is a caller error, never a panic.
type UnsupportedCompressionError struct {
	Type CompressionType
}

func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("unsupported compression type: %d", byte(e.Type))
}

// IsUnsupportedCompressionError checks if an error is an
// UnsupportedCompressionError anywhere in its chain.
func IsUnsupportedCompressionError(err error) bool {
	var target *UnsupportedCompressionError
	return errors.As(err, &target)
}
