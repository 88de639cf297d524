// Package genlist provides an intrusive doubly-linked list. The list is
// threaded through the elements themselves so that membership changes are O(1)
// and need no side allocations, which is what generation tracking wants: an
// object header moves between lists without its address ever changing.
package genlist

const asserts = false

// Links are the intrusive hooks embedded in every list element. An element is
// in at most one list at a time.
type Links[T any] struct {
	Prev, Next *T
}

// List is a doubly-linked list of *T. The hook function gives the list access
// to the Links field embedded in an element.
type List[T any] struct {
	first, last *T
	size        int
	hook        func(*T) *Links[T]
}

// New returns an empty list using hook to reach the intrusive links.
func New[T any](hook func(*T) *Links[T]) List[T] {
	return List[T]{hook: hook}
}

// PushBack appends v to the list.
func (l *List[T]) PushBack(v *T) {
	h := l.hook(v)
	if asserts && (h.Prev != nil || h.Next != nil || l.first == v) {
		panic("genlist: element is already linked")
	}
	h.Prev = l.last
	h.Next = nil
	if l.last != nil {
		l.hook(l.last).Next = v
	} else {
		l.first = v
	}
	l.last = v
	l.size++
}

// Remove unlinks v from the list.
func (l *List[T]) Remove(v *T) {
	h := l.hook(v)
	if h.Prev != nil {
		l.hook(h.Prev).Next = h.Next
	} else {
		l.first = h.Next
	}
	if h.Next != nil {
		l.hook(h.Next).Prev = h.Prev
	} else {
		l.last = h.Prev
	}
	h.Prev, h.Next = nil, nil
	l.size--
}

// Front returns the first element, or nil if the list is empty.
func (l *List[T]) Front() *T {
	return l.first
}

// Next returns the element following v, or nil at the end of the list.
// Remove clears v's links, so Next on an unlinked element returns nil; a loop
// that removes elements while iterating reads Next before calling Remove.
func (l *List[T]) Next(v *T) *T {
	return l.hook(v).Next
}

// Len returns the number of elements in the list.
func (l *List[T]) Len() int {
	return l.size
}
