package telemetry

import (
	"sync"
	"testing"
	"time"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func readingAt(i int) Reading {
	temp := float64(i)
	return Reading{Time: base.Add(time.Duration(i) * time.Minute), Temperature: &temp}
}

func readings(from, to int) []Reading {
	out := make([]Reading, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, readingAt(i))
	}
	return out
}

func assertOrder(t *testing.T, got []Reading, from, to int) {
	t.Helper()
	if len(got) != to-from+1 {
		t.Fatalf("expected %d readings, got %d", to-from+1, len(got))
	}
	for i, r := range got {
		want := base.Add(time.Duration(from+i) * time.Minute)
		if !r.Time.Equal(want) {
			t.Fatalf("reading %d: expected %s, got %s", i, want, r.Time)
		}
	}
}

func TestWindowAppendNeverExceedsCapacity(t *testing.T) {
	w := NewWindow(WindowCapacity)

	for i := 1; i <= 3*WindowCapacity; i++ {
		w.Append(readingAt(i))
		if w.Len() > WindowCapacity {
			t.Fatalf("window length %d exceeds capacity after %d appends", w.Len(), i)
		}
	}

	assertOrder(t, w.Snapshot(), 2*WindowCapacity+1, 3*WindowCapacity)
	if w.Evicted() != 2*WindowCapacity {
		t.Fatalf("expected %d evictions, got %d", 2*WindowCapacity, w.Evicted())
	}
}

func TestWindowResetThenLatest(t *testing.T) {
	w := NewWindow(WindowCapacity)
	w.Reset(readings(1, 50))

	latest, ok := w.Latest()
	if !ok {
		t.Fatalf("expected a latest reading")
	}
	if !latest.Time.Equal(readingAt(50).Time) {
		t.Fatalf("expected r50, got %s", latest.Time)
	}
}

func TestWindowResetKeepsNewest(t *testing.T) {
	w := NewWindow(5)
	w.Reset(readings(1, 8))
	assertOrder(t, w.Snapshot(), 4, 8)
}

func TestWindowResetEmpty(t *testing.T) {
	w := NewWindow(5)
	w.Reset(readings(1, 3))
	w.Reset(nil)

	if w.Len() != 0 {
		t.Fatalf("expected empty window, got %d", w.Len())
	}
	if _, ok := w.Latest(); ok {
		t.Fatalf("expected no latest reading on empty window")
	}
}

func TestWindowFullPlusOneDropsOldest(t *testing.T) {
	w := NewWindow(WindowCapacity)
	w.Reset(readings(1, 50))
	w.Append(readingAt(51))

	if w.Len() != WindowCapacity {
		t.Fatalf("expected length %d, got %d", WindowCapacity, w.Len())
	}
	snap := w.Snapshot()
	if snap[0].Time.Equal(readingAt(1).Time) {
		t.Fatalf("oldest reading was not evicted")
	}
	assertOrder(t, snap, 2, 51)
}

func TestWindowSnapshotIsCopy(t *testing.T) {
	w := NewWindow(3)
	w.Reset(readings(1, 2))

	snap := w.Snapshot()
	snap[0] = readingAt(99)

	if !w.Snapshot()[0].Time.Equal(readingAt(1).Time) {
		t.Fatalf("snapshot mutation leaked into window")
	}
}

func TestWindowResetDoesNotAliasInput(t *testing.T) {
	w := NewWindow(3)
	input := readings(1, 2)
	w.Reset(input)
	input[0] = readingAt(99)

	if !w.Snapshot()[0].Time.Equal(readingAt(1).Time) {
		t.Fatalf("reset input mutation leaked into window")
	}
}

func TestWindowConcurrentReadersAndWriter(t *testing.T) {
	w := NewWindow(WindowCapacity)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			w.Append(readingAt(i))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				snap := w.Snapshot()
				if len(snap) > WindowCapacity {
					t.Errorf("snapshot length %d exceeds capacity", len(snap))
					return
				}
				for j := 1; j < len(snap); j++ {
					if snap[j].Time.Before(snap[j-1].Time) {
						t.Errorf("snapshot out of order at %d", j)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
}
