package record

import (
	"fmt"
	"sync"
	"time"
)

// Entry is a row stamped with the time elapsed since the start of a run
type Entry struct {
	Elapsed time.Duration
	Row     Row
}

type node struct {
	entry *Entry
	next  *node
}

// History implements a thread-safe buffer of log rows kept in elapsed time
// order. Entries arriving late are inserted at their place, entries with
// the same elapsed time keep their arrival order.
type History struct {
	capacity   int // Maximum number of entries to store
	flushCount int // Number of entries to remove when the buffer reaches capacity

	mu   sync.Mutex
	head *node
	tail *node
	size int
}

// NewHistory creates a buffer storing up to capacity entries. Flush removes
// flushCount entries at a time.
func NewHistory(capacity, flushCount int) (*History, error) {
	if capacity <= 0 || flushCount <= 0 || flushCount > capacity {
		return nil, fmt.Errorf("invalid history parameters: capacity=%d, flushCount=%d", capacity, flushCount)
	}
	return &History{
		capacity:   capacity,
		flushCount: flushCount,
	}, nil
}

// Insert adds an entry in elapsed time order. Returns an error if the entry is nil.
func (h *History) Insert(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cannot insert nil entry")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	n := &node{entry: entry}
	h.size++

	switch {
	case h.head == nil:
		h.head, h.tail = n, n
		return nil

	case entry.Elapsed >= h.tail.entry.Elapsed: // common case, rows arrive in order
		h.tail.next = n
		h.tail = n
		return nil

	case entry.Elapsed < h.head.entry.Elapsed:
		n.next = h.head
		h.head = n
		return nil
	}

	// Find insertion point
	current := h.head
	for current.next != nil && current.next.entry.Elapsed <= entry.Elapsed {
		current = current.next
	}
	n.next = current.next
	current.next = n

	return nil
}

// IsFull returns true if the buffer has reached its capacity.
func (h *History) IsFull() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.size >= h.capacity
}

// Flush removes and returns the oldest entries. Returns nil if the buffer is
// empty. Overflow beyond capacity is flushed too.
func (h *History) Flush() []*Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.head == nil {
		return nil
	}

	count := h.flushCount
	if h.size > h.capacity {
		count += h.size - h.capacity
	}
	count = min(count, h.size)

	results := make([]*Entry, 0, count)
	current := h.head
	for i := 0; i < count && current != nil; i++ {
		results = append(results, current.entry)
		current = current.next
	}

	h.head = current
	if h.head == nil {
		h.tail = nil
	}
	h.size -= len(results)
	return results
}

// DrainAll removes and returns all entries. Returns nil if the buffer is empty.
func (h *History) DrainAll() []*Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.head == nil {
		return nil
	}

	results := make([]*Entry, 0, h.size)
	for current := h.head; current != nil; current = current.next {
		results = append(results, current.entry)
	}

	h.head, h.tail = nil, nil
	h.size = 0
	return results
}

// Size returns the current number of entries.
func (h *History) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Clear removes all entries.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head, h.tail = nil, nil
	h.size = 0
}

// Rows returns the rows of the entries
func Rows(entries []*Entry) []Row {
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = e.Row
	}
	return rows
}
