package core

import "fmt"

// IdentifierTable hands out small integer ids for owners, reusing released
// slots first. The zero value is ready to use with no upper bound.
type IdentifierTable[T any] struct {
	owners []*T
	max    uint32
}

// NewIdentifierTable returns a table that refuses ids at or beyond max.
// A max of zero means unbounded.
func NewIdentifierTable[T any](max uint32) *IdentifierTable[T] {
	return &IdentifierTable[T]{max: max}
}

func (t *IdentifierTable[T]) Acquire(owner T) (uint32, error) {
	for i := range t.owners {
		// Existing free spot. Take it.
		if t.owners[i] == nil {
			t.owners[i] = &owner
			return uint32(i), nil
		}
	}
	length := uint32(len(t.owners))
	if t.max > 0 && length >= t.max {
		return 0, fmt.Errorf("identifier table full (max=%d)", t.max)
	}
	t.owners = append(t.owners, &owner)
	return length, nil
}

// Set places owner at a specific id, growing the table if needed.
func (t *IdentifierTable[T]) Set(id uint32, owner T) error {
	if t.max > 0 && id >= t.max {
		return fmt.Errorf("identifier '%d' out of range (max=%d)", id, t.max)
	}
	for uint32(len(t.owners)) <= id {
		t.owners = append(t.owners, nil)
	}
	t.owners[id] = &owner
	return nil
}

func (t *IdentifierTable[T]) Release(id uint32) error {
	length := uint32(len(t.owners))
	if id >= length {
		return fmt.Errorf("identifier release: id '%d' out of range (len=%d). Nothing was done", id, length)
	}
	// Just zero out the entry, making it available for use.
	t.owners[id] = nil
	return nil
}

func (t *IdentifierTable[T]) Get(id uint32) (T, bool) {
	var zero T
	if id >= uint32(len(t.owners)) || t.owners[id] == nil {
		return zero, false
	}
	return *t.owners[id], true
}

// Each calls fn for every occupied id in ascending order.
func (t *IdentifierTable[T]) Each(fn func(id uint32, owner T)) {
	for i, o := range t.owners {
		if o != nil {
			fn(uint32(i), *o)
		}
	}
}

func (t *IdentifierTable[T]) Len() int {
	n := 0
	for _, o := range t.owners {
		if o != nil {
			n++
		}
	}
	return n
}
