package ecs

// Query is a lazy, restartable iterator over the entities holding every
// requested component type. Iteration is driven by the dense order of the
// smallest participating store and filtered with the entity mask, so the
// order is that store's dense order, not entity-index order, and not stable
// across differing insert/remove histories.
//
// While a query is between its first Next and exhaustion (or Close), every
// participating store is locked: structural mutations against those stores
// are queued and applied at end-of-tick instead of invalidating the
// iteration.
type Query struct {
	w      *World
	mask   Mask
	stores []anyStore
	driver anyStore
	idx    int
	cur    EntityID
	active bool
	valid  bool
}

// Query builds a query over the given component types. Requesting an
// unregistered id yields an empty query.
func (w *World) Query(ids ...ComponentID) *Query {
	q := &Query{w: w, valid: len(ids) > 0}
	for _, id := range ids {
		if int(id) >= len(w.stores) {
			q.valid = false
			break
		}
		q.stores = append(q.stores, w.stores[id])
		q.mask.Set(uint8(id))
	}
	return q
}

// Next advances to the next matching entity. The first call picks the
// driving store and locks the participants; returning false releases them.
func (q *Query) Next() bool {
	if !q.valid {
		return false
	}
	if !q.active {
		q.driver = q.stores[0]
		for _, s := range q.stores[1:] {
			if s.length() < q.driver.length() {
				q.driver = s
			}
		}
		for _, s := range q.stores {
			s.lock()
		}
		q.active = true
		q.idx = -1
	}
	for q.idx++; q.idx < q.driver.length(); q.idx++ {
		e := q.driver.entityAt(q.idx)
		if q.w.pool.recordAt(e.Index()).mask.ContainsAll(q.mask) {
			q.cur = e
			return true
		}
	}
	q.release()
	return false
}

// Entity returns the handle at the current position.
func (q *Query) Entity() EntityID { return q.cur }

// Close releases the store locks of an iteration abandoned before
// exhaustion. Closing an exhausted or unstarted query is a no-op.
func (q *Query) Close() {
	if q.active {
		q.release()
	}
}

// Reset rewinds the query so it can run again from the start.
func (q *Query) Reset() {
	q.Close()
}

// Count runs the query to exhaustion and returns the number of matches.
func (q *Query) Count() int {
	q.Reset()
	n := 0
	for q.Next() {
		n++
	}
	return n
}

func (q *Query) release() {
	for _, s := range q.stores {
		s.unlock()
	}
	q.active = false
	q.driver = nil
	q.w.flushIfIdle()
}
