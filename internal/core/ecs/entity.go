package ecs

import "container/heap"

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. The generation increments on destroy so stale handles
// are detectable: equality of both halves is required for a handle to be
// considered live.
type EntityID uint64

func NewEntityID(index, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }

// entityRecord is the per-slot bookkeeping: current generation, liveness,
// and the bitmask of component types attached to the entity.
type entityRecord struct {
	generation uint32
	alive      bool
	mask       Mask
}

// freeIndexHeap is a min-heap of free slot indices, so entity creation
// always reuses the lowest free slot first.
type freeIndexHeap []uint32

func (h freeIndexHeap) Len() int            { return len(h) }
func (h freeIndexHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h freeIndexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *freeIndexHeap) Push(x interface{}) { *h = append(*h, x.(uint32)) }
func (h *freeIndexHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// EntityPool manages entity slots with generational indices. Fresh slots
// start at generation 0; recycled slots come back with their generation
// already bumped by the destroy that freed them.
type EntityPool struct {
	records []entityRecord
	free    freeIndexHeap
	alive   int
}

func NewEntityPool(initialCapacity int) *EntityPool {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	return &EntityPool{
		records: make([]entityRecord, 0, initialCapacity),
		free:    make(freeIndexHeap, 0, 64),
	}
}

// Create reuses the lowest free slot if any, else appends a fresh one.
func (p *EntityPool) Create() EntityID {
	p.alive++
	if p.free.Len() > 0 {
		idx := heap.Pop(&p.free).(uint32)
		rec := &p.records[idx]
		rec.alive = true
		rec.mask = Mask{}
		return NewEntityID(idx, rec.generation)
	}
	idx := uint32(len(p.records))
	p.records = append(p.records, entityRecord{alive: true})
	return NewEntityID(idx, 0)
}

// Alive is an O(1) generation comparison.
func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if int(idx) >= len(p.records) {
		return false
	}
	rec := &p.records[idx]
	return rec.alive && rec.generation == id.Generation()
}

// AliveCount returns the number of live entities.
func (p *EntityPool) AliveCount() int { return p.alive }

// lookup resolves a handle to its record, failing on stale handles.
func (p *EntityPool) lookup(id EntityID) (*entityRecord, error) {
	idx := id.Index()
	if int(idx) >= len(p.records) {
		return nil, ErrStaleHandle
	}
	rec := &p.records[idx]
	if !rec.alive || rec.generation != id.Generation() {
		return nil, ErrStaleHandle
	}
	return rec, nil
}

// release frees a slot: generation bump, mask cleared, back on the free heap.
func (p *EntityPool) release(idx uint32) {
	rec := &p.records[idx]
	rec.alive = false
	rec.generation++
	rec.mask = Mask{}
	heap.Push(&p.free, idx)
	p.alive--
}

func (p *EntityPool) recordAt(idx uint32) *entityRecord {
	return &p.records[idx]
}
