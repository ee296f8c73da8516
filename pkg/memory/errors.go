package memory

import (
	"errors"
	"fmt"
)

// ValidationError reports bad input caught before any remote call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CapabilityError reports that a required remote operation is unavailable
// in the deployed client surface.
type CapabilityError struct {
	Capability string
	FileID     string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability unavailable: %s: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// PartialWriteError reports a save whose upload succeeded but whose
// attribute update failed, leaving an untagged orphan document in the
// store. FileID and SHA256 let the caller locate and reconcile it; no
// automatic rollback is attempted since the remote delete can fail too.
type PartialWriteError struct {
	VectorStoreID string
	FileID        string
	SHA256        string
	Err           error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("memory uploaded as %s but attribute update failed (orphan document, sha256=%s): %v",
		e.FileID, e.SHA256, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
