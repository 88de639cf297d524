package tinygc

import (
	"reflect"
	"unsafe"

	"github.com/tinygc-org/tinygc/internal/layout"
)

// Finalizer is implemented by managed types that need cleanup before their
// storage is released. Finalize runs exactly once, either when the collector
// frees the object or when it is deleted explicitly. Allocating from inside
// Finalize is allowed; the new object is parked until the current sweep ends.
type Finalizer interface {
	Finalize()
}

var (
	refType       = reflect.TypeOf(Ref{})
	finalizerType = reflect.TypeOf((*Finalizer)(nil)).Elem()
)

// classMeta is the per-type record shared by all objects of one Go type. It
// caches where the handle fields live so that tracing an object is a table
// walk instead of a reflect traversal.
type classMeta struct {
	typ      reflect.Type
	size     uintptr
	layout   layout.Layout
	finalize func(unsafe.Pointer)           // per element, nil if not a Finalizer
	makeEnum func(*objMeta) PtrEnumerator   // nil: walk the layout table
}

func (k *classMeta) name() string {
	return k.typ.String()
}

var (
	classMu pmutex
	classes = map[reflect.Type]*classMeta{}
)

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func classFor(t reflect.Type) *classMeta {
	return classForEnum(t, nil)
}

// classForEnum registers t with a custom child enumerator factory. The first
// registration of a type wins; later calls return the cached record.
func classForEnum(t reflect.Type, makeEnum func(*objMeta) PtrEnumerator) *classMeta {
	classMu.Lock()
	defer classMu.Unlock()
	if k, ok := classes[t]; ok {
		return k
	}
	k := &classMeta{
		typ:      t,
		size:     t.Size(),
		layout:   layout.Pack(handleOffsets(t, 0, nil)),
		finalize: finalizerFor(t),
		makeEnum: makeEnum,
	}
	classes[t] = k
	return k
}

// handleOffsets collects the byte offsets of every handle embedded in t,
// recursing through structs and arrays. A handle is recognized by being
// convertible to the erased handle struct, which only types declared in this
// package can be.
func handleOffsets(t reflect.Type, base uintptr, out []uintptr) []uintptr {
	switch t.Kind() {
	case reflect.Struct:
		if t.Size() == refType.Size() && t.ConvertibleTo(refType) {
			return append(out, base)
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			out = handleOffsets(f.Type, base+f.Offset, out)
		}
	case reflect.Array:
		n := t.Len()
		if n == 0 {
			return out
		}
		elem := t.Elem()
		before := len(out)
		out = handleOffsets(elem, base, out)
		first := out[before:]
		stride := elem.Size()
		for i := 1; i < n; i++ {
			for _, off := range first {
				out = append(out, off+uintptr(i)*stride)
			}
		}
	}
	return out
}

func finalizerFor(t reflect.Type) func(unsafe.Pointer) {
	if !reflect.PointerTo(t).Implements(finalizerType) {
		return nil
	}
	return func(p unsafe.Pointer) {
		reflect.NewAt(t, p).Interface().(Finalizer).Finalize()
	}
}
