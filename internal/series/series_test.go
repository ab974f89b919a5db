package series_test

import (
	"testing"
	"time"

	"codeberg.org/tyrven/vitalsd/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timestamps(points []series.Point) []int64 {
	out := make([]int64, len(points))
	for i, p := range points {
		out[i] = p.Timestamp
	}

	return out
}

func TestAppendRejectsNonMonotonic(t *testing.T) {
	s := series.NewCountBound(10)

	require.NoError(t, s.Append(1000, 1.0))

	err := s.Append(1000, 2.0)
	require.ErrorIs(t, err, series.ErrNotAfter, "equal timestamp must be rejected")

	err = s.Append(999, 3.0)
	require.ErrorIs(t, err, series.ErrNotAfter, "earlier timestamp must be rejected")

	// Rejections leave the series untouched
	assert.Equal(t, 1, s.Len())
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, int64(1000), last.Timestamp)
	assert.InDelta(t, 1.0, last.Value, 1e-9)
}

func TestCountBoundEvictsFront(t *testing.T) {
	s := series.NewCountBound(3)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Append(i*1000, float64(i)))
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []int64{3000, 4000, 5000}, timestamps(s.Points()), "oldest points evict first")
}

func TestDurationBoundWindow(t *testing.T) {
	s := series.NewDurationBound(30 * time.Second)

	require.NoError(t, s.Append(0, 1.0))
	require.NoError(t, s.Append(10000, 2.0))
	require.NoError(t, s.Append(20000, 3.0))
	require.NoError(t, s.Append(40000, 4.0))

	// Window anchors on the latest timestamp: 40000 - 30000 = 10000,
	// and points at the boundary are retained.
	assert.Equal(t, []int64{10000, 20000, 40000}, timestamps(s.Points()))
}

func TestPruneAgesOutSilentSeries(t *testing.T) {
	s := series.NewDurationBound(30 * time.Second)

	require.NoError(t, s.Append(0, 1.0))
	require.NoError(t, s.Append(10000, 2.0))

	s.Prune(35000)
	assert.Equal(t, []int64{10000}, timestamps(s.Points()), "points older than now-window drop")

	s.Prune(100000)
	assert.Equal(t, 0, s.Len(), "a long-silent series empties out")
}

func TestPruneIgnoresCountBound(t *testing.T) {
	s := series.NewCountBound(5)

	require.NoError(t, s.Append(1000, 1.0))
	s.Prune(1 << 40)

	assert.Equal(t, 1, s.Len(), "count-bound series never age out")
}

func TestStats(t *testing.T) {
	s := series.NewDurationBound(time.Minute)

	require.NoError(t, s.Append(0, 5.0))
	require.NoError(t, s.Append(1000, 7.0))
	require.NoError(t, s.Append(2000, 3.0))

	st, ok := s.Stats()
	require.True(t, ok)
	assert.InDelta(t, 3.0, st.Min, 1e-9)
	assert.InDelta(t, 7.0, st.Max, 1e-9)
	assert.InDelta(t, 5.0, st.Avg, 1e-9)
}

func TestStatsEmpty(t *testing.T) {
	s := series.NewCountBound(3)

	_, ok := s.Stats()
	assert.False(t, ok)
}

func TestPointsReturnsCopy(t *testing.T) {
	s := series.NewCountBound(3)
	require.NoError(t, s.Append(1000, 1.0))

	pts := s.Points()
	pts[0].Value = 99.0

	fresh := s.Points()
	assert.InDelta(t, 1.0, fresh[0].Value, 1e-9, "callers must not alias internal storage")
}

func TestPointsSince(t *testing.T) {
	s := series.NewCountBound(10)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.Append(i*1000, float64(i)))
	}

	assert.Equal(t, []int64{2000, 3000, 4000}, timestamps(s.PointsSince(2000)))
	assert.Empty(t, s.PointsSince(10000))
}

func TestLastN(t *testing.T) {
	s := series.NewCountBound(10)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.Append(i*1000, float64(i)))
	}

	assert.Equal(t, []int64{3000, 4000}, timestamps(s.LastN(2)))
	assert.Len(t, s.LastN(100), 5, "asking for more than retained returns everything")
	assert.Nil(t, s.LastN(0))
}

func TestClearKeepsPolicy(t *testing.T) {
	s := series.NewCountBound(2)
	require.NoError(t, s.Append(1000, 1.0))
	require.NoError(t, s.Append(2000, 2.0))

	s.Clear()
	assert.Equal(t, 0, s.Len())

	// A cleared series accepts earlier timestamps again and still
	// enforces its count bound.
	require.NoError(t, s.Append(10, 1.0))
	require.NoError(t, s.Append(20, 2.0))
	require.NoError(t, s.Append(30, 3.0))
	assert.Equal(t, []int64{20, 30}, timestamps(s.Points()))
}
