package feed

// Buffer is an ordered queue of distinct candidates with a fixed capacity.
// It is not safe for concurrent use; a Scheduler serializes access.
type Buffer struct {
	capacity int
	items    []Candidate
	ids      map[string]struct{}
}

// NewBuffer returns an empty buffer holding at most capacity candidates.
// A non-positive capacity is treated as 1.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		items:    make([]Candidate, 0, capacity),
		ids:      make(map[string]struct{}, capacity),
	}
}

// Len returns the number of buffered candidates.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Full reports whether the buffer is at capacity.
func (b *Buffer) Full() bool {
	return len(b.items) >= b.capacity
}

// Items returns a copy of the buffered candidates, head first.
func (b *Buffer) Items() []Candidate {
	out := make([]Candidate, len(b.items))
	copy(out, b.items)
	return out
}

// Contains reports whether a candidate with id is buffered.
func (b *Buffer) Contains(id string) bool {
	_, ok := b.ids[id]
	return ok
}

// Append adds c at the tail. It returns false, leaving the buffer unchanged,
// if c is already buffered or the buffer is full.
func (b *Buffer) Append(c Candidate) bool {
	if b.Full() || b.Contains(c.ID) {
		return false
	}
	b.items = append(b.items, c)
	b.ids[c.ID] = struct{}{}
	return true
}

// Front returns the head candidate.
func (b *Buffer) Front() (Candidate, bool) {
	if len(b.items) == 0 {
		return Candidate{}, false
	}
	return b.items[0], true
}

// At returns the candidate at position i.
func (b *Buffer) At(i int) (Candidate, bool) {
	if i < 0 || i >= len(b.items) {
		return Candidate{}, false
	}
	return b.items[i], true
}

// PopFront removes and returns the head candidate.
func (b *Buffer) PopFront() (Candidate, bool) {
	if len(b.items) == 0 {
		return Candidate{}, false
	}
	head := b.items[0]
	b.items[0] = Candidate{}
	b.items = b.items[1:]
	delete(b.ids, head.ID)
	if len(b.items) == 0 {
		b.items = make([]Candidate, 0, b.capacity)
	}
	return head, true
}

// Reset removes every candidate.
func (b *Buffer) Reset() {
	b.items = make([]Candidate, 0, b.capacity)
	clear(b.ids)
}
