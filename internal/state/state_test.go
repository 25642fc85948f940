package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutThenGetReturnsDeepCopy(t *testing.T) {
	s := New()
	original := map[string]any{"x": 1}
	s.Put("a", "B", "C", original)

	got, ok := s.Get("a.B.C")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"x": 1}, got)

	// Mutating the caller's map after Put must not affect the stored slot.
	original["x"] = 999
	got2, _ := s.Get("a.B.C")
	assert.Equal(t, map[string]any{"x": 1}, got2)

	// Mutating the value returned by Get must not affect the store either.
	got.(map[string]any)["x"] = -1
	got3, _ := s.Get("a.B.C")
	assert.Equal(t, map[string]any{"x": 1}, got3)
}

func TestGetOnUnsetSlotReportsMissing(t *testing.T) {
	s := New()
	_, ok := s.Get("no.such.slot")
	assert.False(t, ok)
}

func TestPutListAppendsInInsertionOrder(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		s.PutList("a", "B", "C", map[string]any{"i": i})
	}

	got, ok := s.Get("a.B.C")
	require.True(t, ok)
	list := got.([]map[string]any)
	require.Len(t, list, 3)
	for i, entry := range list {
		assert.Equal(t, i, entry["i"])
	}
}

func TestPutMapInsertsAndOverwritesByKey(t *testing.T) {
	s := New()
	s.PutMap("a", "B", "C", map[string]any{"v": 1}, "k1")
	s.PutMap("a", "B", "C", map[string]any{"v": 2}, "k2")
	s.PutMap("a", "B", "C", map[string]any{"v": 99}, "k1")

	got, ok := s.Get("a.B.C")
	require.True(t, ok)
	m := got.(map[string]map[string]any)
	assert.Equal(t, map[string]any{"v": 99}, m["k1"])
	assert.Equal(t, map[string]any{"v": 2}, m["k2"])
}

func TestSnapshotCopiesEveryMutatedSlot(t *testing.T) {
	s := New()
	s.Put("a", "B", "C", map[string]any{"x": 1})
	s.Put("d", "E", "F", map[string]any{"y": 2})

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, map[string]any{"x": 1}, snap["a.B.C"])
	assert.Equal(t, map[string]any{"y": 2}, snap["d.E.F"])
}

func TestWaitForReturnsFalseOnTimeoutWithNoPut(t *testing.T) {
	s := New()
	ok := s.WaitFor("a.B.C", 20*time.Millisecond)
	assert.False(t, ok)
}

func TestWaitForUnblocksWhenMatchingPutArrives(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	wg.Add(1)
	var result bool
	go func() {
		defer wg.Done()
		result = s.WaitFor("a.B.C", time.Second)
	}()

	time.Sleep(100 * time.Millisecond)
	s.Put("a", "B", "C", map[string]any{"x": 1})

	wg.Wait()
	assert.True(t, result)
}

func TestWaitForUnblocksAllOutstandingWaiters(t *testing.T) {
	s := New()

	const n = 5
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.WaitFor("a.B.C", time.Second)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	s.Put("a", "B", "C", map[string]any{"x": 1})
	wg.Wait()

	for _, r := range results {
		assert.True(t, r)
	}
}
