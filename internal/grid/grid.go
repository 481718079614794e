// Package grid converts absolute ticks to quantized (bar, position)
// coordinates and back, following the time-signature changes of a
// performance. Ticks that fall between grid points are quantized down to
// the nearest earlier point; that loss is an accepted property of the
// token formats built on top of this package.
package grid

import (
	"fmt"

	"github.com/Natooz/MIDITok/internal/event"
)

// segment is a stretch of the timeline governed by one time signature.
type segment struct {
	startTick int64
	startBar  int
	barTicks  int64
	posTicks  int64
}

// TimeGrid maps ticks to (bar, position) pairs for a fixed resolution,
// subdivision and time-signature sequence. It is immutable once built and
// safe for concurrent readers.
type TimeGrid struct {
	resolution      int
	positionsPerBar int
	segments        []segment
}

// New builds a grid for the given resolution (ticks per quarter note),
// bar subdivision, and tick-ascending time-signature changes. A default
// 4/4 segment covers any span before the first change.
func New(resolution, positionsPerBar int, signatures []event.TimeSignatureChange) (*TimeGrid, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("grid: resolution %d, want > 0", resolution)
	}
	if positionsPerBar <= 0 {
		return nil, fmt.Errorf("grid: positions per bar %d, want > 0", positionsPerBar)
	}

	g := &TimeGrid{resolution: resolution, positionsPerBar: positionsPerBar}
	cur := segment{
		startTick: 0,
		startBar:  0,
		barTicks:  barTicks(resolution, event.DefaultNumerator, event.DefaultDenominator),
	}
	for _, ts := range signatures {
		if ts.Tick < 0 || ts.Numerator <= 0 || ts.Denominator <= 0 {
			return nil, fmt.Errorf("grid: invalid time signature %d/%d at tick %d", ts.Numerator, ts.Denominator, ts.Tick)
		}
		if ts.Tick > cur.startTick {
			g.push(cur)
			// A change mid-bar opens a fresh bar under the new signature.
			elapsed := int((ts.Tick - cur.startTick + cur.barTicks - 1) / cur.barTicks)
			cur = segment{
				startTick: ts.Tick,
				startBar:  cur.startBar + elapsed,
			}
		}
		cur.barTicks = barTicks(resolution, ts.Numerator, ts.Denominator)
	}
	g.push(cur)
	return g, nil
}

func barTicks(resolution, numerator, denominator int) int64 {
	return int64(resolution) * 4 * int64(numerator) / int64(denominator)
}

func (g *TimeGrid) push(s segment) {
	s.posTicks = s.barTicks / int64(g.positionsPerBar)
	if s.posTicks == 0 {
		s.posTicks = 1
	}
	g.segments = append(g.segments, s)
}

// PositionsPerBar returns the configured bar subdivision.
func (g *TimeGrid) PositionsPerBar() int { return g.positionsPerBar }

// Resolution returns the grid's ticks per quarter note.
func (g *TimeGrid) Resolution() int { return g.resolution }

func (g *TimeGrid) segmentAt(tick int64) segment {
	seg := g.segments[0]
	for _, s := range g.segments[1:] {
		if s.startTick > tick {
			break
		}
		seg = s
	}
	return seg
}

func (g *TimeGrid) segmentAtBar(bar int) segment {
	seg := g.segments[0]
	for _, s := range g.segments[1:] {
		if s.startBar > bar {
			break
		}
		seg = s
	}
	return seg
}

// TickToGrid returns the (bar, position) coordinate of tick, quantizing
// down to the grid point at or before it. Negative ticks map to (0, 0).
func (g *TimeGrid) TickToGrid(tick int64) (bar, position int) {
	if tick < 0 {
		return 0, 0
	}
	seg := g.segmentAt(tick)
	rel := tick - seg.startTick
	bar = seg.startBar + int(rel/seg.barTicks)
	position = int((rel % seg.barTicks) / seg.posTicks)
	return bar, position
}

// GridToTick is the exact inverse of TickToGrid for grid-resolvable
// ticks: TickToGrid(GridToTick(b, p)) == (b, p).
func (g *TimeGrid) GridToTick(bar, position int) int64 {
	if bar < 0 {
		bar = 0
	}
	if position < 0 {
		position = 0
	}
	seg := g.segmentAtBar(bar)
	return seg.startTick + int64(bar-seg.startBar)*seg.barTicks + int64(position)*seg.posTicks
}

// Quantize snaps tick down to the nearest grid point at or before it.
func (g *TimeGrid) Quantize(tick int64) int64 {
	return g.GridToTick(g.TickToGrid(tick))
}

// StepTicks returns the length in ticks of one grid position at the
// given tick, under the time signature active there. Durations and time
// shifts are measured in these steps.
func (g *TimeGrid) StepTicks(tick int64) int64 {
	return g.segmentAt(tick).posTicks
}

// StepsBetween returns the number of whole grid steps from tick a to
// tick b (b >= a), stepping at the granularity active at a.
func (g *TimeGrid) StepsBetween(a, b int64) int {
	if b <= a {
		return 0
	}
	return int((b - a) / g.StepTicks(a))
}
