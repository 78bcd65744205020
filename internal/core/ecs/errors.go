package ecs

import "errors"

var (
	// ErrStaleHandle is returned when an entity handle's generation no longer
	// matches its slot, or the slot is already free.
	ErrStaleHandle = errors.New("ecs: stale entity handle")

	// ErrDuplicateComponent is returned when adding a component the entity
	// already has. The storage is left unchanged.
	ErrDuplicateComponent = errors.New("ecs: duplicate component")

	// ErrMissingComponent is returned when removing or reading a component
	// the entity does not have.
	ErrMissingComponent = errors.New("ecs: missing component")
)
