package storage

import (
	"errors"
	"fmt"

	"github.com/basaltdb/basalt/core"
)

// Artifact names which file of an SST/index pair an operation touched.
type Artifact string

const (
	ArtifactSST   Artifact = "sst"
	ArtifactIndex Artifact = "index"
)

// DeleteError reports a failed deletion, identifying the FileID and which
// artifact failed so callers can tell which file remains in the store.
type DeleteError struct {
	FileID   core.FileID
	Artifact Artifact
	Err      error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s file %s: %v", e.Artifact, e.FileID, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// IsDeleteError checks if an error is a DeleteError anywhere in its chain.
func IsDeleteError(err error) bool {
	var target *DeleteError
	return errors.As(err, &target)
}

// CleanDirError reports that the atomic-write staging directory could not
// be inspected or removed during store provisioning.
type CleanDirError struct {
	Dir string
	Err error
}

func (e *CleanDirError) Error() string {
	return fmt.Sprintf("failed to clean dir %s: %v", e.Dir, e.Err)
}

func (e *CleanDirError) Unwrap() error {
	return e.Err
}

// IsCleanDirError checks if an error is a CleanDirError anywhere in its chain.
func IsCleanDirError(err error) bool {
	var target *CleanDirError
	return errors.As(err, &target)
}
