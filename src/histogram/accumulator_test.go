package histogram

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndSnapshot(t *testing.T) {
	a := New()
	for _, s := range []int{1, 2, 3, 4, 5} {
		require.NoError(t, a.Record(time.Duration(s)*time.Second))
	}

	d := a.Snapshot()
	assert.Equal(t, int64(5), d.Count)
	assert.Equal(t, int64(1000), d.Min)
	assert.InDelta(t, 5000, d.Max, 5)
	assert.InDelta(t, 3000, d.Mean, 5)
	assert.InDelta(t, 3000, d.ValueAt(50), 5)
	assert.InDelta(t, 5000, d.ValueAt(100), 5)
}

func TestRecordOutOfRange(t *testing.T) {
	a := New()

	assert.NoError(t, a.Record(time.Hour))
	assert.ErrorIs(t, a.Record(time.Hour+time.Millisecond), ErrOutOfRange)
	assert.ErrorIs(t, a.Record(-time.Second), ErrOutOfRange)
	assert.Equal(t, int64(1), a.Snapshot().Count)
}

func TestEmptySnapshot(t *testing.T) {
	d := New().Snapshot()
	assert.Zero(t, d.Count)
	assert.Empty(t, d.Percentiles)
}

// Recording order does not change the distribution.
func TestRecordCommutative(t *testing.T) {
	samples := make([]time.Duration, 500)
	for i := range samples {
		samples[i] = time.Duration(rand.Intn(3_600_000)) * time.Millisecond
	}

	ordered := New()
	for _, s := range samples {
		require.NoError(t, ordered.Record(s))
	}

	shuffled := New()
	perm := rand.Perm(len(samples))
	var wg sync.WaitGroup
	for _, i := range perm {
		wg.Add(1)
		go func(d time.Duration) {
			defer wg.Done()
			assert.NoError(t, shuffled.Record(d))
		}(samples[i])
	}
	wg.Wait()

	assert.Equal(t, ordered.Snapshot(), shuffled.Snapshot())
}

func TestWritePercentiles(t *testing.T) {
	a := New()
	require.NoError(t, a.Record(1500*time.Millisecond))

	var buf bytes.Buffer
	require.NoError(t, a.WritePercentiles(&buf, 5, 1000.0))
	assert.Contains(t, buf.String(), "Value")
	assert.Contains(t, buf.String(), "Percentile")
	assert.Contains(t, buf.String(), "1.500")
}
