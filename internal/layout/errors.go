package layout

import "errors"

var (
	// ErrInvalidSpec is returned when a spec has no slots, an empty slot,
	// or a well number outside the source plate.
	ErrInvalidSpec = errors.New("spec must contain at least one slot of positive well numbers")
	// ErrSpecTooLarge is returned when the combination count overflows.
	ErrSpecTooLarge = errors.New("combination count is too large")
	// ErrInvalidGeometry is returned for a malformed plate geometry.
	ErrInvalidGeometry = errors.New("plate geometry is invalid")
	// ErrPlateOverflow is returned when the layout does not fit the plate.
	ErrPlateOverflow = errors.New("layout exceeds plate capacity")
	// ErrColumnOverlap is returned when the standards column collides with
	// an explicitly configured template column.
	ErrColumnOverlap = errors.New("standards column overlaps a template column")
	// ErrInvalidVolume is returned for non-positive transfer volumes.
	ErrInvalidVolume = errors.New("volume must be positive")
	// ErrInvalidCount is returned for non-positive well or dispense counts.
	ErrInvalidCount = errors.New("count must be positive")
)
