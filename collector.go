package tinygc

import (
	"io"
	"unsafe"

	"github.com/tinygc-org/tinygc/internal/genlist"
)

// Collector owns the two generation lists and everything the write barrier
// maintains between cycles. One collector is active per process; the package
// level functions operate on it.
type Collector struct {
	mu pmutex

	// ScanCountToOldGen is the number of young collections an object must
	// survive before it is promoted to the old generation.
	ScanCountToOldGen int
	// NewGenObjCntToGC is the allocation count that arms an automatic
	// young collection at the next safe point.
	NewGenObjCntToGC int
	// OldGenObjCntToFullGC is the old generation size that escalates a
	// young collection into a full one.
	OldGenObjCntToFullGC int
	// Trace enables cycle logging to the trace writer.
	Trace bool

	newGen genlist.List[objMeta]
	oldGen genlist.List[objMeta]

	// intergen holds old generation objects that may reference young
	// ones. Young marking treats their children as roots.
	intergen map[*objMeta]struct{}
	// delayIntergen holds objects whose constructors are still running;
	// their barrier work is settled when construction finishes.
	delayIntergen map[*objMeta]struct{}

	creatingObjs []*objMeta
	markStack    []*objMeta
	// nursery holds objects allocated while a collection is in progress,
	// typically from finalizers. They join the young generation when the
	// cycle ends.
	nursery []*objMeta

	collecting   bool
	fullMark     bool
	pendingGC    bool
	allocSinceGC int

	allocFn   func(size uintptr) (unsafe.Pointer, error)
	deallocFn func(p unsafe.Pointer, size uintptr)
	traceW    io.Writer

	totalAllocs     uint64
	totalAllocBytes uint64
	liveBytes       uintptr
	freedObjs       uint64
	freedBytes      uint64
	lastFreedObjs   uint64
	youngGCCount    uint64
	fullGCCount     uint64
	rootDrops       uint64
}

// NewCollector returns a collector with the default tunables.
func NewCollector() *Collector {
	c := &Collector{
		ScanCountToOldGen:    2,
		NewGenObjCntToGC:     10240,
		OldGenObjCntToFullGC: 102400,
		intergen:             map[*objMeta]struct{}{},
		delayIntergen:        map[*objMeta]struct{}{},
	}
	hook := func(m *objMeta) *genlist.Links[objMeta] { return &m.gen }
	c.newGen = genlist.New(hook)
	c.oldGen = genlist.New(hook)
	return c
}

// Collect runs a young generation collection. It escalates to a full
// collection when the old generation has reached its threshold.
func (c *Collector) Collect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collecting {
		return
	}
	c.collectYoung()
}

// FullCollect collects both generations.
func (c *Collector) FullCollect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collecting {
		return
	}
	c.collectFull()
}

// SetAllocator installs payload allocation hooks. The allocator must return
// memory that stays put; the collector zeroes it itself. Pass nil, nil to
// return to the Go heap. Changing the allocator only changes where objects
// created afterwards get their storage. Storage from a hook is released
// through the dealloc hook installed at the time of release, not the one
// paired with the allocating hook; while no dealloc hook is installed it is
// not handed back at all.
func (c *Collector) SetAllocator(alloc func(uintptr) (unsafe.Pointer, error), dealloc func(unsafe.Pointer, uintptr)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allocFn = alloc
	c.deallocFn = dealloc
}

// Reserve grows the mark stack capacity ahead of a deep heap, avoiding
// regrowth during cycles.
func (c *Collector) Reserve(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cap(c.markStack) < n {
		s := make([]*objMeta, len(c.markStack), n)
		copy(s, c.markStack)
		c.markStack = s
	}
}

// collectYoung marks from the young roots and the remembered set, then
// sweeps the young generation with promotion.
func (c *Collector) collectYoung() {
	c.collecting = true
	c.fullMark = false
	c.lastFreedObjs = 0
	c.tracef("gc: young cycle start, %d young, %d old, %d remembered\n",
		c.newGen.Len(), c.oldGen.Len(), len(c.intergen))

	for m := c.newGen.Front(); m != nil; m = c.newGen.Next(m) {
		if m.isRoot() {
			c.mark(m)
		}
	}
	for src := range c.intergen {
		if !c.markChildren(src) {
			// No young children left behind this source; the barrier
			// re-adds it if a young edge reappears.
			delete(c.intergen, src)
		}
	}
	for _, m := range c.creatingObjs {
		c.mark(m)
	}

	doomed := c.sweepYoung()
	c.youngGCCount++
	c.finalizeAndFree(doomed)
	c.endCycle()
	c.tracef("gc: young cycle end, freed %d\n", c.lastFreedObjs)

	if c.oldGen.Len() >= c.OldGenObjCntToFullGC {
		c.collectFull()
	}
}

// collectFull marks from the roots of both generations and sweeps both. The
// remembered set is not consulted, full marking reaches everything.
func (c *Collector) collectFull() {
	c.collecting = true
	c.fullMark = true
	c.lastFreedObjs = 0
	c.tracef("gc: full cycle start, %d young, %d old\n", c.newGen.Len(), c.oldGen.Len())

	for m := c.oldGen.Front(); m != nil; m = c.oldGen.Next(m) {
		if m.isRoot() {
			c.mark(m)
		}
	}
	for m := c.newGen.Front(); m != nil; m = c.newGen.Next(m) {
		if m.isRoot() {
			c.mark(m)
		}
	}
	for _, m := range c.creatingObjs {
		c.mark(m)
	}

	doomed := c.sweepOld()
	doomed = append(doomed, c.sweepYoung()...)
	c.fullGCCount++
	c.finalizeAndFree(doomed)
	c.endCycle()
	c.tracef("gc: full cycle end, freed %d\n", c.lastFreedObjs)
}

// mark blackens m and everything reachable from it within the current mark
// scope. Young marking does not enter the old generation; the remembered set
// covers those edges.
func (c *Collector) mark(m *objMeta) {
	c.pushMark(m)
	for len(c.markStack) > 0 {
		n := c.markStack[len(c.markStack)-1]
		c.markStack = c.markStack[:len(c.markStack)-1]
		e := n.enumerator()
		if e == nil {
			continue
		}
		for {
			r, ok := e.Next()
			if !ok {
				break
			}
			c.pushMark(r.meta)
		}
	}
}

func (c *Collector) pushMark(m *objMeta) {
	if m == nil || m.destroyed() || m.color == black {
		return
	}
	if !c.fullMark && m.isOld {
		return
	}
	m.color = black
	c.markStack = append(c.markStack, m)
}

// markChildren marks the young objects directly or transitively reachable
// from the remembered source without blackening the source itself. It
// reports whether the source still holds any young child.
func (c *Collector) markChildren(src *objMeta) bool {
	if src.destroyed() {
		return false
	}
	e := src.enumerator()
	if e == nil {
		return false
	}
	saw := false
	for {
		r, ok := e.Next()
		if !ok {
			break
		}
		m := r.meta
		if m != nil && !m.isOld && !m.destroyed() {
			saw = true
			c.mark(m)
		}
	}
	return saw
}

// sweepYoung frees the white young objects. In a young cycle it ages the
// black ones, promoting those that have survived enough young cycles; in a
// full cycle survivors are only whitened. A promoted object is
// remembered conservatively when it can hold handles, since its children may
// still be young.
func (c *Collector) sweepYoung() []*objMeta {
	var doomed []*objMeta
	m := c.newGen.Front()
	for m != nil {
		next := c.newGen.Next(m)
		if m.color == black {
			m.color = white
			if c.fullMark {
				m = next
				continue
			}
			m.scanCountInNewGen++
			if int(m.scanCountInNewGen) >= c.ScanCountToOldGen {
				c.newGen.Remove(m)
				c.oldGen.PushBack(m)
				m.isOld = true
				m.scanCountInNewGen = 0
				if m.klass.makeEnum != nil || !m.klass.layout.Empty() {
					c.intergen[m] = struct{}{}
				}
			}
		} else {
			c.newGen.Remove(m)
			doomed = append(doomed, m)
		}
		m = next
	}
	return doomed
}

// sweepOld frees the white old objects. No aging happens here, the old
// generation is terminal.
func (c *Collector) sweepOld() []*objMeta {
	var doomed []*objMeta
	m := c.oldGen.Front()
	for m != nil {
		next := c.oldGen.Next(m)
		if m.color == black {
			m.color = white
		} else {
			c.oldGen.Remove(m)
			delete(c.intergen, m)
			doomed = append(doomed, m)
		}
		m = next
	}
	return doomed
}

// finalizeAndFree runs the finalizers of the doomed objects and releases
// their storage. Finalizers run without the collector lock so they can
// allocate and release handles; objects they allocate mid cycle are parked
// in the nursery.
func (c *Collector) finalizeAndFree(doomed []*objMeta) {
	if len(doomed) == 0 {
		return
	}
	c.mu.Unlock()
	for _, m := range doomed {
		if m.destroyed() || m.klass.finalize == nil {
			continue
		}
		for i := 0; i < m.arrayLength; i++ {
			m.klass.finalize(m.elem(i))
		}
	}
	c.mu.Lock()
	for _, m := range doomed {
		if m.destroyed() {
			continue
		}
		size := m.sizeInBytes()
		c.releaseStorage(m)
		c.liveBytes -= size
		c.freedObjs++
		c.freedBytes += uint64(size)
		c.lastFreedObjs++
	}
}

func (c *Collector) endCycle() {
	for _, m := range c.nursery {
		c.newGen.PushBack(m)
	}
	c.nursery = c.nursery[:0]
	c.collecting = false
	c.fullMark = false
	c.allocSinceGC = 0
	c.pendingGC = false
}

// findObjByPtr locates the header of the allocation containing p, searching
// the construction stack first so partially built objects are found too.
func (c *Collector) findObjByPtr(p unsafe.Pointer) *objMeta {
	if m := c.findCreatingObj(p); m != nil {
		return m
	}
	for m := c.newGen.Front(); m != nil; m = c.newGen.Next(m) {
		if m.containsPtr(p) {
			return m
		}
	}
	for m := c.oldGen.Front(); m != nil; m = c.oldGen.Next(m) {
		if m.containsPtr(p) {
			return m
		}
	}
	for _, m := range c.nursery {
		if m.containsPtr(p) {
			return m
		}
	}
	return nil
}

func (c *Collector) findCreatingObj(p unsafe.Pointer) *objMeta {
	for i := len(c.creatingObjs) - 1; i >= 0; i-- {
		if m := c.creatingObjs[i]; m.containsPtr(p) {
			return m
		}
	}
	return nil
}
