package tinygc

import (
	"unsafe"

	"github.com/tinygc-org/tinygc/internal/layout"
)

// PtrEnumerator yields the handles held by one object, in any order. The
// collector drives it during marking; container types install their own
// enumerator so that elements kept in Go slices and maps are traced without
// the registry having to understand those layouts.
type PtrEnumerator interface {
	Next() (Ref, bool)
}

// subPtrEnumerator walks the handle offset table of an ordinary object,
// element by element.
type subPtrEnumerator struct {
	m   *objMeta
	it  layout.Iter
	idx int
}

func (e *subPtrEnumerator) Next() (Ref, bool) {
	for e.idx < e.m.arrayLength {
		if off, ok := e.it.Next(); ok {
			return *(*Ref)(unsafe.Add(e.m.elem(e.idx), off)), true
		}
		e.idx++
		e.it = e.m.klass.layout.Iter()
	}
	return Ref{}, false
}

// RegisterEnumerator installs fn as the handle enumerator for T, letting a
// type that keeps handles in plain Go slices or maps participate in tracing.
// Call it before the first allocation of T; a type already registered keeps
// its original enumerator.
func RegisterEnumerator[T any](fn func(*T) PtrEnumerator) {
	classForEnum(typeOf[T](), func(m *objMeta) PtrEnumerator {
		return fn((*T)(m.ptr))
	})
}

// enumerator returns the child walker for m, or nil when the object holds no
// handles at all.
func (m *objMeta) enumerator() PtrEnumerator {
	if m.destroyed() {
		return nil
	}
	if m.klass.makeEnum != nil {
		return m.klass.makeEnum(m)
	}
	if m.klass.layout.Empty() {
		return nil
	}
	return &subPtrEnumerator{m: m, it: m.klass.layout.Iter()}
}
