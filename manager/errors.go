package manager

import (
	"errors"
	"fmt"

	"github.com/eak1mov/go-tilestream/tile"
)

var (
	ErrNoLoader           = errors.New("tilestream: tile loader is required")
	ErrInvariantViolation = errors.New("tilestream: invariant violation")
	ErrInvalidPosition    = errors.New("tilestream: invalid position")
)

// InvariantError is the panic value raised when the manager is asked to
// perform a lifecycle operation that would corrupt the tile cache.
// It signals a defect, not a recoverable condition.
type InvariantError struct {
	Op    string
	Index tile.Index
	Msg   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: %s %v: %s", ErrInvariantViolation, e.Op, e.Index, e.Msg)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}
