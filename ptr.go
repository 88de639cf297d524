package tinygc

import "unsafe"

// Ref is the type-erased form of a handle. A handle remembers two things: the
// object it points at and the object it lives inside. A handle with no owner
// is a root; assigning to it drives the root reference count of its target.
// A handle owned by an object participates in tracing through its owner.
type Ref struct {
	meta  *objMeta
	owner *objMeta
}

// Ptr is a typed handle to a managed allocation of T. The zero value is nil.
// Mutate handles only through Assign, Move and Release so the collector sees
// every edge change; plain Go copies are borrowed views and must not outlive
// the handle they were copied from.
type Ptr[T any] struct {
	meta  *objMeta
	owner *objMeta
}

// Ptr and Ref must stay layout-identical, the barrier and the enumerators
// cast between them.
var _ [unsafe.Sizeof(Ref{})]byte = [unsafe.Sizeof(Ptr[int]{})]byte{}

func (p *Ptr[T]) ref() *Ref {
	return (*Ref)(unsafe.Pointer(p))
}

// IsNil reports whether p points at nothing, or at an object whose storage
// was already released.
func (p Ptr[T]) IsNil() bool {
	return p.meta == nil || p.meta.destroyed()
}

// Get returns the first element of the allocation. It panics with
// ErrNullDeref on a nil or deleted handle.
func (p Ptr[T]) Get() *T {
	if p.IsNil() {
		panic(ErrNullDeref)
	}
	return (*T)(p.meta.ptr)
}

// At returns element i of an array allocation. It panics with ErrIndexRange
// when i is out of bounds.
func (p Ptr[T]) At(i int) *T {
	if p.IsNil() {
		panic(ErrNullDeref)
	}
	if i < 0 || i >= p.meta.arrayLength {
		panic(ErrIndexRange)
	}
	return (*T)(p.meta.elem(i))
}

// Len returns the element count of the allocation, zero for nil handles.
func (p Ptr[T]) Len() int {
	if p.meta == nil || p.meta.destroyed() {
		return 0
	}
	return p.meta.arrayLength
}

// Equal reports whether both handles point at the same allocation.
func (p Ptr[T]) Equal(o Ptr[T]) bool {
	return p.meta == o.meta
}

// Ref returns the type-erased view of p. The result shares p's rooting, it
// does not add a reference of its own.
func (p Ptr[T]) Ref() Ref {
	return Ref{meta: p.meta, owner: p.owner}
}

// Assign repoints p at the target of o, updating root counts and the
// remembered set as needed.
func (p *Ptr[T]) Assign(o Ptr[T]) {
	c := current()
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := p.meta
	p.meta = o.meta
	c.writeBarrier(p.ref(), prev)
}

// Move transfers o's target into p and leaves o nil.
func (p *Ptr[T]) Move(o *Ptr[T]) {
	p.Assign(*o)
	o.Release()
}

// Release sets p to nil. A rooted handle must be released exactly once when
// it goes out of use, that is what lets the target be collected.
func (p *Ptr[T]) Release() {
	c := current()
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := p.meta
	p.meta = nil
	c.writeBarrier(p.ref(), prev)
}

// IsNil reports whether r points at nothing or at a deleted object.
func (r Ref) IsNil() bool {
	return r.meta == nil || r.meta.destroyed()
}

// Equal reports whether both erased handles point at the same allocation.
func (r Ref) Equal(o Ref) bool {
	return r.meta == o.meta
}

// Assign repoints r at the target of o, with the same accounting as the
// typed form.
func (r *Ref) Assign(o Ref) {
	c := current()
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := r.meta
	r.meta = o.meta
	c.writeBarrier(r, prev)
}

// Release sets r to nil, dropping its root reference if it was a root.
func (r *Ref) Release() {
	c := current()
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := r.meta
	r.meta = nil
	c.writeBarrier(r, prev)
}

// CastTo converts an erased handle back to a typed one. It returns a nil
// handle unless the allocation is exactly of type T. The result shares r's
// rooting.
func CastTo[T any](r Ref) Ptr[T] {
	if r.meta == nil || r.meta.klass.typ != typeOf[T]() {
		return Ptr[T]{}
	}
	return Ptr[T]{meta: r.meta, owner: r.owner}
}

// writeBarrier runs after *r has been repointed; prev is the old target. It
// keeps three invariants: the root count of every object equals the number of
// unowned handles at it, handles stored inside an object under construction
// get their owner stamped as soon as they are first assigned, and every old
// to young edge has its source in the remembered set. Callers hold c.mu.
func (c *Collector) writeBarrier(r *Ref, prev *objMeta) {
	if r.owner == nil && len(c.creatingObjs) > 0 {
		// The handle may live inside an object whose constructor is
		// still running, in which case it is owned, not a root.
		if owner := c.findCreatingObj(unsafe.Pointer(r)); owner != nil {
			r.owner = owner
			c.delayIntergen[owner] = struct{}{}
		}
	}
	if r.meta == prev {
		return
	}
	if r.owner == nil {
		if prev != nil {
			prev.dropRootRef()
			if !prev.isRoot() {
				c.rootDrops++
			}
		}
		if r.meta != nil {
			r.meta.addRootRef()
		}
		return
	}
	if r.meta == nil {
		return
	}
	if _, creating := c.delayIntergen[r.owner]; creating {
		return
	}
	if r.owner.isOld && !r.meta.isOld {
		c.intergen[r.owner] = struct{}{}
	}
}

// OwnSlot stores the target of p into slot as a handle owned by container,
// with full barrier accounting. Custom container types registered through
// RegisterEnumerator use it when storing handles into backing storage the
// reflection pass cannot see.
func OwnSlot[C any, E any](container Ptr[C], slot *Ptr[E], p Ptr[E]) {
	if container.meta == nil {
		panic(ErrNullDeref)
	}
	c := current()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setOwned(container.meta, slot.ref(), p.meta)
}

// setOwned stamps target as owned by owner and runs the barrier, used by the
// container types when they store a handle into backing storage the registry
// cannot see.
func (c *Collector) setOwned(owner *objMeta, target *Ref, meta *objMeta) {
	prev := target.meta
	target.meta = meta
	target.owner = owner
	c.writeBarrier(target, prev)
}
