package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks session traffic using lock-free atomic counters.
type Collector struct {
	bytesIn         atomic.Int64
	bytesOut        atomic.Int64
	slowPathPDUs    atomic.Int64
	fastPathUpdates atomic.Int64
	rectangles      atomic.Int64
	paletteUpdates  atomic.Int64
	inputEvents     atomic.Int64
	droppedEvents   atomic.Int64
	startTime       time.Time

	// Ring buffer, written only by Tick.
	mu          sync.Mutex
	throughput  [ringSize]int64 // inbound bytes per second
	rectsPerSec [ringSize]int64
	ringIdx     int
	ringCount   int // samples written, capped at ringSize
	lastBytes   int64
	lastRects   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	BytesIn         int64         `json:"bytes_in"`
	BytesOut        int64         `json:"bytes_out"`
	SlowPathPDUs    int64         `json:"slow_path_pdus"`
	FastPathUpdates int64         `json:"fast_path_updates"`
	Rectangles      int64         `json:"rectangles"`
	PaletteUpdates  int64         `json:"palette_updates"`
	InputEvents     int64         `json:"input_events"`
	DroppedEvents   int64         `json:"dropped_events"`
	Elapsed         time.Duration `json:"elapsed"`
}

func (c *Collector) AddBytesIn(n int64)         { c.bytesIn.Add(n) }
func (c *Collector) AddBytesOut(n int64)        { c.bytesOut.Add(n) }
func (c *Collector) AddSlowPathPDUs(n int64)    { c.slowPathPDUs.Add(n) }
func (c *Collector) AddFastPathUpdates(n int64) { c.fastPathUpdates.Add(n) }
func (c *Collector) AddRectangles(n int64)      { c.rectangles.Add(n) }
func (c *Collector) AddPaletteUpdates(n int64)  { c.paletteUpdates.Add(n) }
func (c *Collector) AddInputEvents(n int64)     { c.inputEvents.Add(n) }
func (c *Collector) AddDroppedEvents(n int64)   { c.droppedEvents.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		BytesIn:         c.bytesIn.Load(),
		BytesOut:        c.bytesOut.Load(),
		SlowPathPDUs:    c.slowPathPDUs.Load(),
		FastPathUpdates: c.fastPathUpdates.Load(),
		Rectangles:      c.rectangles.Load(),
		PaletteUpdates:  c.paletteUpdates.Load(),
		InputEvents:     c.inputEvents.Load(),
		DroppedEvents:   c.droppedEvents.Load(),
		Elapsed:         c.Elapsed(),
	}
}

// Tick snapshots byte and rectangle deltas into the ring buffer. Called once
// a second.
func (c *Collector) Tick() {
	currentBytes := c.bytesIn.Load()
	currentRects := c.rectangles.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = currentBytes - c.lastBytes
	c.rectsPerSec[c.ringIdx] = currentRects - c.lastRects
	c.lastBytes = currentBytes
	c.lastRects = currentRects

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average inbound bytes/sec over the last n samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingRectsPerSec returns average rectangles/sec over the last n samples.
func (c *Collector) RollingRectsPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.rectsPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// History returns the last n bytes/sec samples, oldest first.
func (c *Collector) History(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count == 0 {
		return nil
	}
	data := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.throughput[idx])
	}
	return data
}

// Idle reports whether no rectangles arrived in the last n samples. It is
// false until n samples exist.
func (c *Collector) Idle(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ringCount < n {
		return false
	}
	for i := range n {
		if c.rectsPerSec[(c.ringIdx-1-i+ringSize)%ringSize] != 0 {
			return false
		}
	}
	return true
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"in=%d out=%d slowpath=%d fastpath=%d rects=%d palettes=%d input=%d dropped=%d",
		s.BytesIn, s.BytesOut, s.SlowPathPDUs, s.FastPathUpdates,
		s.Rectangles, s.PaletteUpdates, s.InputEvents, s.DroppedEvents,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
