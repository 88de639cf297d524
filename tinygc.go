// Package tinygc is a tracing, generational garbage collector for object
// graphs built with Ptr handles. Objects live in a young generation until
// they have survived a few collections, then move to an old generation that
// is only scanned by full collections. A write barrier inside handle
// assignment keeps root counts exact and records old-to-young edges in a
// remembered set, so collections never scan the program stack.
//
// Handles returned by New, NewArray, From and NewFunc are rooted; release
// them with Release (or Move them into an object) when done. Handles stored
// inside managed objects are discovered by reflection at first allocation of
// their type and traced automatically.
package tinygc

import (
	"io"
	"unsafe"
)

var defaultCollector = NewCollector()

func current() *Collector {
	return defaultCollector
}

// setCollector swaps the active collector and returns the previous one.
func setCollector(c *Collector) *Collector {
	prev := defaultCollector
	defaultCollector = c
	return prev
}

// Collect runs a young collection on the active collector.
func Collect() {
	current().Collect()
}

// FullCollect collects both generations of the active collector.
func FullCollect() {
	current().FullCollect()
}

// GetStats returns a snapshot of the active collector's counters.
func GetStats() Stats {
	return current().Stats()
}

// DumpStats writes a human readable stats table to w.
func DumpStats(w io.Writer) {
	current().DumpStats(w)
}

// SetAllocator installs payload allocation hooks on the active collector.
func SetAllocator(alloc func(uintptr) (unsafe.Pointer, error), dealloc func(unsafe.Pointer, uintptr)) {
	current().SetAllocator(alloc, dealloc)
}

// Configure applies cfg to the active collector.
func Configure(cfg Config) error {
	return current().Configure(cfg)
}
