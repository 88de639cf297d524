package tinygc

import (
	"reflect"
	"unsafe"
)

// New allocates a zero-valued managed T and returns a rooted handle to it.
// It panics if the allocator fails.
func New[T any]() Ptr[T] {
	p, err := TryNew[T](nil)
	if err != nil {
		panic(err)
	}
	return p
}

// NewValue allocates a managed copy of v.
func NewValue[T any](v T) Ptr[T] {
	p, err := newObject[T](1, func(_ int, dst *T) error {
		*dst = v
		return nil
	}, nil)
	if err != nil {
		panic(err)
	}
	return p
}

// TryNew allocates a managed T, running ctor on the zeroed storage if it is
// not nil. On a ctor error the storage is released and the error returned
// wrapped in a ConstructError.
func TryNew[T any](ctor func(*T) error) (Ptr[T], error) {
	var each func(int, *T) error
	if ctor != nil {
		each = func(_ int, p *T) error { return ctor(p) }
	}
	return newObject[T](1, each, nil)
}

// NewArray allocates a managed array of n zero-valued elements. Element i is
// reached through At(i) on the returned handle.
func NewArray[T any](n int) Ptr[T] {
	p, err := TryNewArray[T](n, nil)
	if err != nil {
		panic(err)
	}
	return p
}

// TryNewArray allocates a managed array of n elements, running ctor on each
// in index order. If ctor fails at element i, elements 0..i-1 are finalized
// in reverse order, the storage is released, and the wrapped error returned.
func TryNewArray[T any](n int, ctor func(int, *T) error) (Ptr[T], error) {
	if n < 0 {
		panic(ErrIndexRange)
	}
	return newObject[T](n, ctor, nil)
}

// From recovers the rooted handle for the managed object containing p. It
// fails with ErrMissingHeader when p is not inside a live allocation of
// exactly type T.
func From[T any](p *T) (Ptr[T], error) {
	c := current()
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.findObjByPtr(unsafe.Pointer(p))
	if m == nil || m.klass.typ != typeOf[T]() {
		return Ptr[T]{}, ErrMissingHeader
	}
	m.addRootRef()
	return Ptr[T]{meta: m}, nil
}

// MustFrom is From that panics on failure.
func MustFrom[T any](p *T) Ptr[T] {
	h, err := From[T](p)
	if err != nil {
		panic(err)
	}
	return h
}

// Delete finalizes and frees the object behind p immediately and sets p to
// nil. Other handles at the same object turn nil as well; its header is
// reclaimed by the next collection that reaches it.
func Delete[T any](p *Ptr[T]) {
	c := current()
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := p.meta; m != nil && !m.destroyed() {
		c.finalizeAndFree([]*objMeta{m})
	}
	prev := p.meta
	p.meta = nil
	c.writeBarrier(p.ref(), prev)
}

// Delete is the erased form of the package level Delete.
func (r *Ref) Delete() {
	c := current()
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := r.meta; m != nil && !m.destroyed() {
		c.finalizeAndFree([]*objMeta{m})
	}
	prev := r.meta
	r.meta = nil
	c.writeBarrier(r, prev)
}

// newObject is the single allocation entry point. It links the header,
// pushes it on the construction stack, runs the constructors with unwind on
// failure, then stamps ownership of the handles discovered in the payload.
func newObject[T any](n int, ctor func(int, *T) error, makeEnum func(*objMeta) PtrEnumerator) (Ptr[T], error) {
	c := current()
	c.mu.Lock()

	c.allocSinceGC++
	if c.allocSinceGC >= c.NewGenObjCntToGC {
		c.pendingGC = true
	}
	if c.pendingGC && !c.collecting && len(c.creatingObjs) == 0 {
		c.collectYoung()
	}

	k := classForEnum(typeOf[T](), makeEnum)
	m := &objMeta{klass: k, arrayLength: n, color: white}
	if err := c.allocStorage(m, n); err != nil {
		c.mu.Unlock()
		return Ptr[T]{}, err
	}
	if c.collecting {
		c.nursery = append(c.nursery, m)
	} else {
		c.newGen.PushBack(m)
	}
	c.creatingObjs = append(c.creatingObjs, m)
	// Constructors are user code and may assign handles or allocate, so
	// they run without the collector lock. The object is safe meanwhile:
	// members of the construction stack are marked unconditionally.
	c.mu.Unlock()

	i := 0
	done := false
	defer func() {
		if done {
			return
		}
		// Constructor error or panic: tear down the initialized prefix
		// and drop the allocation.
		for j := i - 1; j >= 0; j-- {
			if k.finalize != nil {
				k.finalize(m.elem(j))
			}
		}
		c.mu.Lock()
		c.endNewMeta(m, true)
		c.mu.Unlock()
	}()

	if ctor != nil {
		for ; i < n; i++ {
			if err := ctor(i, (*T)(m.elem(i))); err != nil {
				return Ptr[T]{}, &ConstructError{Type: k.name(), Index: i, Err: err}
			}
		}
	}

	c.mu.Lock()
	c.adoptSubPtrs(m)
	c.endNewMeta(m, false)
	m.addRootRef()
	c.mu.Unlock()
	done = true
	return Ptr[T]{meta: m}, nil
}

// allocStorage obtains zeroed payload memory, from the user allocator when
// one is installed, otherwise from the Go heap pinned through the header.
func (c *Collector) allocStorage(m *objMeta, n int) error {
	size := m.klass.size * uintptr(n)
	if c.allocFn != nil {
		p, err := c.allocFn(size)
		if err != nil || p == nil {
			if err == nil {
				err = ErrAllocFailure
			}
			return err
		}
		memzero(p, size)
		m.ptr = p
		m.raw = true
		return nil
	}
	rv := reflect.New(reflect.ArrayOf(n, m.klass.typ))
	m.hold = rv.Interface()
	m.ptr = rv.UnsafePointer()
	return nil
}

func memzero(p unsafe.Pointer, n uintptr) {
	b := unsafe.Slice((*byte)(p), n)
	for i := range b {
		b[i] = 0
	}
}

// adoptSubPtrs stamps every handle field of the finished payload as owned by
// m. Handles assigned during construction were stamped by the barrier
// already; this catches ones written by plain struct copies.
func (c *Collector) adoptSubPtrs(m *objMeta) {
	if m.klass.layout.Empty() {
		return
	}
	for i := 0; i < m.arrayLength; i++ {
		it := m.klass.layout.Iter()
		for {
			off, ok := it.Next()
			if !ok {
				break
			}
			(*Ref)(unsafe.Add(m.elem(i), off)).owner = m
		}
	}
}

// endNewMeta pops m off the construction stack. On failure the header is
// unlinked and the storage released; on success the allocation counters are
// charged.
func (c *Collector) endNewMeta(m *objMeta, failed bool) {
	if gcAsserts && (len(c.creatingObjs) == 0 || c.creatingObjs[len(c.creatingObjs)-1] != m) {
		panic("tinygc: construction stack out of order")
	}
	c.creatingObjs = c.creatingObjs[:len(c.creatingObjs)-1]
	delete(c.delayIntergen, m)
	if failed {
		c.unlinkFresh(m)
		c.releaseStorage(m)
		return
	}
	size := m.sizeInBytes()
	c.liveBytes += size
	c.totalAllocs++
	c.totalAllocBytes += uint64(size)
}

func (c *Collector) unlinkFresh(m *objMeta) {
	for i, x := range c.nursery {
		if x == m {
			c.nursery = append(c.nursery[:i], c.nursery[i+1:]...)
			return
		}
	}
	c.newGen.Remove(m)
}

func (c *Collector) releaseStorage(m *objMeta) {
	size := m.sizeInBytes()
	if m.raw && m.ptr != nil && c.deallocFn != nil {
		c.deallocFn(m.ptr, size)
	}
	m.ptr = nil
	m.hold = nil
	m.arrayLength = 0
}
