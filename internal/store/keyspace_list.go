package store

// getOrCreateList fetches the deque for key, creating an empty List value
// if the key is absent. Returns ErrWrongType if key holds something else.
// Callers must hold ks.mu.
func (ks *Keyspace) getOrCreateList(key string) (*deque, error) {
	e, found := ks.lookup(key)
	if !found {
		d := newDeque()
		ks.data[key] = &entry{val: Value{Typ: TypeList, List: d}}
		return d, nil
	}
	if e.val.Typ != TypeList {
		return nil, &ErrWrongType{Have: e.val.Typ, Want: TypeList}
	}
	return e.val.List, nil
}

// RPush appends vals to the tail of the list at key, then wakes any BLPOP
// waiters parked on key (spec.md §4.B, §4.F), and returns the list length
// as it stood right after the push, before any waiter took an element.
// Pushing and waking happen
// atomically under ks.mu so no pushed element can be both delivered to a
// waiter and observed via LRANGE by a third party.
func (ks *Keyspace) RPush(key string, vals [][]byte) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	d, err := ks.getOrCreateList(key)
	if err != nil {
		return 0, err
	}
	d.pushBack(vals...)
	n := d.len()
	ks.wakeListWaiters(key, d)
	return n, nil
}

// LPush prepends vals to the head of the list at key, one at a time in
// argument order, then wakes waiters the same way RPush does.
func (ks *Keyspace) LPush(key string, vals [][]byte) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	d, err := ks.getOrCreateList(key)
	if err != nil {
		return 0, err
	}
	d.pushFront(vals...)
	n := d.len()
	ks.wakeListWaiters(key, d)
	return n, nil
}

// wakeListWaiters delivers list elements to parked BLPOP callers while both
// the waiter FIFO and the list have something left, per spec.md §4.F.
// Must be called with ks.mu held.
func (ks *Keyspace) wakeListWaiters(key string, d *deque) {
	for {
		v, ok := d.popFront()
		if !ok {
			return
		}
		w, ok := ks.waiters.popFront(key)
		if !ok {
			// No one to deliver to: put the element back and stop.
			d.pushFrontRaw(v)
			return
		}
		w.deliver(key, v)
	}
}

// LLen returns the list's length, 0 if the key is absent.
func (ks *Keyspace) LLen(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found {
		return 0, nil
	}
	if e.val.Typ != TypeList {
		return 0, &ErrWrongType{Have: e.val.Typ, Want: TypeList}
	}
	return e.val.List.len(), nil
}

// LPop removes and returns up to n elements from the head of the list.
func (ks *Keyspace) LPop(key string, n int) ([][]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found {
		return nil, nil
	}
	if e.val.Typ != TypeList {
		return nil, &ErrWrongType{Have: e.val.Typ, Want: TypeList}
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		v, ok := e.val.List.popFront()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// LRange returns the clamped, inclusive [start,stop] slice.
func (ks *Keyspace) LRange(key string, start, stop int) ([][]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found {
		return nil, nil
	}
	if e.val.Typ != TypeList {
		return nil, &ErrWrongType{Have: e.val.Typ, Want: TypeList}
	}
	return e.val.List.rangeSlice(start, stop), nil
}

// TryBLPop attempts an immediate pop without ever parking; ok is false if
// the list is empty or absent, and no waiter is registered in that case.
// BLPopOrRegister is the variant that pops or registers a waiter
// atomically.
func (ks *Keyspace) TryBLPop(key string) (val []byte, ok bool, err error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if !found {
		return nil, false, nil
	}
	if e.val.Typ != TypeList {
		return nil, false, &ErrWrongType{Have: e.val.Typ, Want: TypeList}
	}
	v, ok := e.val.List.popFront()
	return v, ok, nil
}

// BLPopOrRegister tries an immediate pop; if the list is empty, it
// registers w as a waiter on key in the same locked section, so no RPush
// on another goroutine can slip in between the failed pop and the
// registration (spec.md §8 "List+BLPOP rendezvous").
func (ks *Keyspace) BLPopOrRegister(key string, w *Waiter) (val []byte, immediate bool, err error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookup(key)
	if found {
		if e.val.Typ != TypeList {
			return nil, false, &ErrWrongType{Have: e.val.Typ, Want: TypeList}
		}
		if v, ok := e.val.List.popFront(); ok {
			return v, true, nil
		}
	}
	ks.waiters.register(key, w)
	return nil, false, nil
}

// CancelWaiter removes w from key's waiter FIFO if it is still queued,
// reporting whether it actually removed it. false means a concurrent push
// already claimed the waiter and a value is (or will shortly be) available
// on w's channel — see Waiter.deliver's mutual-exclusion contract.
func (ks *Keyspace) CancelWaiter(key string, w *Waiter) bool {
	return ks.waiters.remove(key, w)
}

// BlockedWaiters reports the total number of currently parked BLPOP
// callers, for metrics.
func (ks *Keyspace) BlockedWaiters() int {
	return ks.waiters.count()
}
