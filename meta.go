package tinygc

import (
	"unsafe"

	"github.com/tinygc-org/tinygc/internal/genlist"
)

// color is the two-state mark of an object. Between cycles every live object
// is white; the mark phase turns reachable objects black and the sweep phase
// resets survivors to white.
type color uint8

const (
	white color = iota
	black
)

// objMeta is the header the collector keeps for every managed allocation.
// Headers are separate allocations from the payload they describe, so the
// payload address never changes while the header migrates between the young
// and old generation lists.
type objMeta struct {
	klass *classMeta
	ptr   unsafe.Pointer // payload, nil once destroyed
	hold  any            // pins reflect-allocated storage
	raw   bool           // payload came from the user allocator

	arrayLength    int
	refCntFromRoot uint16
	color          color

	// scanCountInNewGen counts the young collections this object survived.
	// Reaching the promotion threshold moves it to the old generation.
	scanCountInNewGen uint8
	isOld             bool

	gen genlist.Links[objMeta]
}

// refCntSaturated marks a count that overflowed and is pinned forever. An
// object stuck at the ceiling is conservatively treated as a root.
const refCntSaturated = ^uint16(0)

func (m *objMeta) isRoot() bool {
	return m.refCntFromRoot > 0
}

func (m *objMeta) destroyed() bool {
	return m.ptr == nil
}

func (m *objMeta) addRootRef() {
	if m.refCntFromRoot != refCntSaturated {
		m.refCntFromRoot++
	}
}

func (m *objMeta) dropRootRef() {
	if gcAsserts && m.refCntFromRoot == 0 {
		panic("tinygc: root refcount underflow")
	}
	if m.refCntFromRoot != refCntSaturated {
		m.refCntFromRoot--
	}
}

// sizeInBytes returns the payload size, zero once destroyed.
func (m *objMeta) sizeInBytes() uintptr {
	if m.ptr == nil {
		return 0
	}
	return m.klass.size * uintptr(m.arrayLength)
}

// containsPtr reports whether p points into the payload. The subtraction
// wraps for addresses below the payload, which the unsigned compare rejects.
func (m *objMeta) containsPtr(p unsafe.Pointer) bool {
	if m.ptr == nil {
		return false
	}
	off := uintptr(p) - uintptr(m.ptr)
	return off < m.klass.size*uintptr(m.arrayLength)
}

// elem returns the address of element i of the payload.
func (m *objMeta) elem(i int) unsafe.Pointer {
	if gcAsserts && (i < 0 || i >= m.arrayLength) {
		panic("tinygc: element index out of range")
	}
	return unsafe.Add(m.ptr, uintptr(i)*m.klass.size)
}
