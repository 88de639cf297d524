// Package layout records where the traced handle fields live inside one
// element of a managed allocation. For small element types the offsets are
// packed into a single word as a bitmask, one bit per pointer-sized slot, so
// scanning an object touches no memory besides the object itself. Larger
// types fall back to an explicit offset table.
package layout

import (
	"math/bits"
	"unsafe"
)

const wordSize = unsafe.Sizeof(uintptr(0))

// Layout describes the handle slots of a single element. The zero value is a
// layout with no handles.
type Layout struct {
	mask    uintptr   // bit i set: handle at byte offset i*wordSize
	offsets []uintptr // used when an offset does not fit in the mask
}

// Pack builds a Layout from the byte offsets of the handle fields within an
// element. Offsets must be word-aligned and strictly increasing.
func Pack(offsets []uintptr) Layout {
	var l Layout
	for _, off := range offsets {
		slot := off / wordSize
		if slot >= uintptr(bits.UintSize) {
			// Too wide for the mask, keep the explicit table instead.
			return Layout{offsets: append([]uintptr(nil), offsets...)}
		}
		l.mask |= 1 << slot
	}
	return l
}

// Empty reports whether the element holds no handles at all.
func (l Layout) Empty() bool {
	return l.mask == 0 && len(l.offsets) == 0
}

// Count returns the number of handle slots per element.
func (l Layout) Count() int {
	if l.offsets != nil {
		return len(l.offsets)
	}
	return bits.OnesCount(uint(l.mask))
}

// Iter returns an iterator over the handle byte offsets of one element, in
// increasing order.
func (l Layout) Iter() Iter {
	return Iter{mask: l.mask, offsets: l.offsets}
}

// Iter walks the handle offsets of a Layout.
type Iter struct {
	mask    uintptr
	offsets []uintptr
	idx     int
}

// Next returns the next handle byte offset. The second result is false once
// the layout is exhausted.
func (it *Iter) Next() (uintptr, bool) {
	if it.offsets != nil {
		if it.idx >= len(it.offsets) {
			return 0, false
		}
		off := it.offsets[it.idx]
		it.idx++
		return off, true
	}
	if it.mask == 0 {
		return 0, false
	}
	slot := bits.TrailingZeros(uint(it.mask))
	it.mask &^= 1 << slot
	return uintptr(slot) * wordSize, true
}
