package storage

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrLockNotHeld is returned when a booking insert runs outside its slot lock.
	ErrLockNotHeld = errors.New("slot lock not held")
)
