package event

import "github.com/sparkgo/spark/internal/core/ecs"

// EntityCreated fires when the runtime allocates an entity handle.
type EntityCreated struct {
	Entity ecs.EntityID
}

// EntityDestroyed fires when a destruction is accepted. Delivery happens on
// the following tick, after the end-of-tick flush has applied any queued
// destructions, so handlers always see the handle already stale.
type EntityDestroyed struct {
	Entity ecs.EntityID
}
