package gpucore

// Arena stores values under small integer handles.
//
// A handle packs a slot index in the low 32 bits and the slot generation in
// the high 32 bits, so a handle to a removed value never resolves to the
// value that later reuses the slot. The zero handle is never issued.
//
// Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

type arenaSlot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) uint64 {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot[T]{})
	}
	s := &a.slots[idx]
	s.gen++
	s.value = v
	s.live = true
	a.live++
	return uint64(s.gen)<<32 | uint64(idx)
}

func (a *Arena[T]) slot(h uint64) *arenaSlot[T] {
	idx := uint32(h)
	if int(idx) >= len(a.slots) {
		return nil
	}
	s := &a.slots[idx]
	if !s.live || s.gen != uint32(h>>32) {
		return nil
	}
	return s
}

// Get returns the value stored under h.
func (a *Arena[T]) Get(h uint64) (T, bool) {
	if s := a.slot(h); s != nil {
		return s.value, true
	}
	var zero T
	return zero, false
}

// Remove deletes the value stored under h and returns it.
func (a *Arena[T]) Remove(h uint64) (T, bool) {
	s := a.slot(h)
	if s == nil {
		var zero T
		return zero, false
	}
	v := s.value
	var zero T
	s.value = zero
	s.live = false
	a.free = append(a.free, uint32(h))
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int { return a.live }

// All calls yield for every live value until yield returns false.
func (a *Arena[T]) All(yield func(h uint64, v T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if !yield(uint64(s.gen)<<32|uint64(i), s.value) {
			return
		}
	}
}

// Clear removes every value.
func (a *Arena[T]) Clear() {
	a.All(func(h uint64, _ T) bool {
		a.Remove(h)
		return true
	})
}
