package jobs

import "errors"

var (
	// ErrInvalidPID is returned when adding a pid that can't belong to a child.
	ErrInvalidPID = errors.New("invalid pid")
	// ErrDuplicate is returned when adding a pid that's already tracked.
	ErrDuplicate = errors.New("job already tracked")
	// ErrTableFull is returned when every slot is in use.
	ErrTableFull = errors.New("job table full")
)
