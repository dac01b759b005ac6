// Package errs holds the error classes shared by the reconstruction packages.
//
// Packages declare their own sentinels and wrap one of the classes below so
// callers can classify a failure with errors.Is without knowing which package
// produced it.
package errs

import "errors"

var (
	// ErrStructuralPrecondition marks programmer errors: formulation steps
	// invoked out of order, fields whose length is not a multiple of the voxel
	// count, mismatched operand shapes. Never recovered.
	ErrStructuralPrecondition = errors.New("structural precondition violated")

	// ErrPersistence marks checkpoint or result writes that failed for any
	// reason other than an already existing directory.
	ErrPersistence = errors.New("persistence failure")
)
