package tinygc

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/inhies/go-bytesize"
	"github.com/mattn/go-colorable"
)

// Stats is a snapshot of the collector counters.
type Stats struct {
	YoungObjects      int
	OldObjects        int
	RememberedObjects int

	LiveBytes       uint64
	TotalAllocs     uint64
	TotalAllocBytes uint64
	FreedObjects    uint64
	FreedBytes      uint64
	LastFreedObjs   uint64

	YoungCollections uint64
	FullCollections  uint64
	RootReleases     uint64
}

// Stats returns a snapshot of the counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		YoungObjects:      c.newGen.Len(),
		OldObjects:        c.oldGen.Len(),
		RememberedObjects: len(c.intergen),
		LiveBytes:         uint64(c.liveBytes),
		TotalAllocs:       c.totalAllocs,
		TotalAllocBytes:   c.totalAllocBytes,
		FreedObjects:      c.freedObjs,
		FreedBytes:        c.freedBytes,
		LastFreedObjs:     c.lastFreedObjs,
		YoungCollections:  c.youngGCCount,
		FullCollections:   c.fullGCCount,
		RootReleases:      c.rootDrops,
	}
}

// DumpStats writes the counters as an aligned table, sizes humanized.
func (c *Collector) DumpStats(w io.Writer) {
	s := c.Stats()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "young objects\t%d\n", s.YoungObjects)
	fmt.Fprintf(tw, "old objects\t%d\n", s.OldObjects)
	fmt.Fprintf(tw, "remembered objects\t%d\n", s.RememberedObjects)
	fmt.Fprintf(tw, "live bytes\t%s\n", bytesize.New(float64(s.LiveBytes)))
	fmt.Fprintf(tw, "total allocations\t%d\n", s.TotalAllocs)
	fmt.Fprintf(tw, "total allocated\t%s\n", bytesize.New(float64(s.TotalAllocBytes)))
	fmt.Fprintf(tw, "freed objects\t%d\n", s.FreedObjects)
	fmt.Fprintf(tw, "freed bytes\t%s\n", bytesize.New(float64(s.FreedBytes)))
	fmt.Fprintf(tw, "young collections\t%d\n", s.YoungCollections)
	fmt.Fprintf(tw, "full collections\t%d\n", s.FullCollections)
	fmt.Fprintf(tw, "root releases\t%d\n", s.RootReleases)
	tw.Flush()
}

// SetTraceWriter directs cycle trace output to w. Passing nil restores the
// default colorized stderr writer.
func (c *Collector) SetTraceWriter(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traceW = w
}

// ResetCounters zeroes the cumulative counters. Generation contents and
// live byte accounting are untouched.
func (c *Collector) ResetCounters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalAllocs = 0
	c.totalAllocBytes = 0
	c.freedObjs = 0
	c.freedBytes = 0
	c.lastFreedObjs = 0
	c.youngGCCount = 0
	c.fullGCCount = 0
	c.rootDrops = 0
}

func (c *Collector) tracef(format string, args ...any) {
	if !c.Trace {
		return
	}
	w := c.traceW
	if w == nil {
		w = colorable.NewColorableStderr()
	}
	fmt.Fprintf(w, format, args...)
}
