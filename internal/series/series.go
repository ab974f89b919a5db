// Package series provides a bounded, monotonically timestamped value
// history. A Series is not safe for concurrent use: each sampling loop
// owns its series and shares copies through the snapshot publisher.
package series

import (
	"errors"
	"time"
)

// ErrNotAfter is returned by Append when the timestamp does not advance
// the series. The series is left unchanged.
var ErrNotAfter = errors.New("timestamp not after latest point")

// Point is a single timestamped reading. Timestamps are Unix
// milliseconds.
type Point struct {
	Timestamp int64
	Value     float64
}

// Stats summarizes the values currently held in a series.
type Stats struct {
	Min float64
	Max float64
	Avg float64
}

// Series holds recent points under a retention policy. A count bound
// keeps at most N points; a duration bound keeps points no older than
// the window measured from the latest timestamp.
type Series struct {
	points   []Point
	maxCount int
	window   time.Duration
}

// NewCountBound creates a series retaining at most maxCount points.
// Older points are evicted from the front as new ones arrive.
func NewCountBound(maxCount int) *Series {
	if maxCount < 1 {
		maxCount = 1
	}

	return &Series{
		points:   make([]Point, 0, maxCount),
		maxCount: maxCount,
	}
}

// NewDurationBound creates a series retaining points within window of
// the latest appended timestamp.
func NewDurationBound(window time.Duration) *Series {
	if window <= 0 {
		window = time.Second
	}

	return &Series{window: window}
}

// Append adds a point. The timestamp must be strictly after the latest
// point; otherwise ErrNotAfter is returned and nothing changes. A
// successful append evicts whatever the retention policy no longer
// covers.
func (s *Series) Append(timestamp int64, value float64) error {
	if n := len(s.points); n > 0 && timestamp <= s.points[n-1].Timestamp {
		return ErrNotAfter
	}

	s.points = append(s.points, Point{Timestamp: timestamp, Value: value})
	s.evict(timestamp)

	return nil
}

// Prune drops points that have aged out of the duration window measured
// from now. It exists for ticks that append nothing: a silent metric
// still ages out. Count-bound series are unaffected.
func (s *Series) Prune(now int64) {
	if s.window <= 0 {
		return
	}

	s.dropBefore(now - s.window.Milliseconds())
}

func (s *Series) evict(latest int64) {
	if s.window > 0 {
		s.dropBefore(latest - s.window.Milliseconds())
	}

	if s.maxCount > 0 && len(s.points) > s.maxCount {
		s.points = append(s.points[:0], s.points[len(s.points)-s.maxCount:]...)
	}
}

// dropBefore removes points with timestamps before cutoff, keeping the
// backing array.
func (s *Series) dropBefore(cutoff int64) {
	i := 0
	for i < len(s.points) && s.points[i].Timestamp < cutoff {
		i++
	}
	if i > 0 {
		s.points = append(s.points[:0], s.points[i:]...)
	}
}

// Points returns a copy of the current contents in append order.
func (s *Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)

	return out
}

// PointsSince returns a copy of the points with timestamps at or after
// since.
func (s *Series) PointsSince(since int64) []Point {
	i := 0
	for i < len(s.points) && s.points[i].Timestamp < since {
		i++
	}

	out := make([]Point, len(s.points)-i)
	copy(out, s.points[i:])

	return out
}

// LastN returns a copy of the most recent n points, fewer when the
// series holds fewer.
func (s *Series) LastN(n int) []Point {
	if n > len(s.points) {
		n = len(s.points)
	}
	if n <= 0 {
		return nil
	}

	out := make([]Point, n)
	copy(out, s.points[len(s.points)-n:])

	return out
}

// Last returns the most recent point, if any.
func (s *Series) Last() (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}

	return s.points[len(s.points)-1], true
}

// Len returns the number of retained points.
func (s *Series) Len() int {
	return len(s.points)
}

// Clear drops all points while keeping the retention policy.
func (s *Series) Clear() {
	s.points = s.points[:0]
}

// Stats computes min, max and mean over the current contents. The
// second return is false when the series is empty.
func (s *Series) Stats() (Stats, bool) {
	if len(s.points) == 0 {
		return Stats{}, false
	}

	st := Stats{Min: s.points[0].Value, Max: s.points[0].Value}
	sum := 0.0
	for _, p := range s.points {
		if p.Value < st.Min {
			st.Min = p.Value
		}
		if p.Value > st.Max {
			st.Max = p.Value
		}
		sum += p.Value
	}
	st.Avg = sum / float64(len(s.points))

	return st, true
}
