package batching

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"pgregory.net/rapid"
)

// reserveConcurrently runs writers goroutines that each call reserve once and
// returns the indices that succeeded.
func reserveConcurrently(b *Batch, writers int) []int {
	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			idx, _, err := b.reserve()
			if err != nil {
				return
			}
			mu.Lock()
			got = append(got, idx)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()
	sort.Ints(got)
	return got
}

func TestBatchReserve_ConcurrentIndicesArePermutation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(rt, "capacity")
		writers := rapid.IntRange(1, 160).Draw(rt, "writers")
		b := newBatch(0, capacity, 1, nil)

		got := reserveConcurrently(b, writers)

		want := writers
		if want > capacity {
			want = capacity
		}
		if len(got) != want {
			rt.Fatalf("successes = %d, want %d", len(got), want)
		}
		for i, idx := range got {
			if idx != i {
				rt.Fatalf("indices not a permutation of 0..%d: %v", want-1, got)
			}
		}
		if c := b.load().cursor(); c != want {
			rt.Fatalf("cursor = %d, want %d", c, want)
		}
	})
}

func TestBatchReserve_CapacityBoundary(t *testing.T) {
	b := newBatch(0, 4, 1, nil)
	for i := 0; i < 4; i++ {
		idx, gen, err := b.reserve()
		if err != nil || idx != i || gen != 0 {
			t.Fatalf("reserve %d: idx=%d gen=%d err=%v", i, idx, gen, err)
		}
	}
	if _, _, err := b.reserve(); !errors.Is(err, errFull) {
		t.Fatalf("5th reserve: want errFull, got %v", err)
	}
	if c := b.load().cursor(); c != 4 {
		t.Fatalf("cursor overshot: %d", c)
	}
}

func TestBatchTryClose(t *testing.T) {
	b := newBatch(0, 4, 1, nil)
	if b.TryClose(true) {
		t.Fatalf("empty batch must not close on timeout")
	}
	if b.TryClose(false) {
		t.Fatalf("partial batch must not close without timeout")
	}
	for i := 0; i < 2; i++ {
		if _, _, err := b.reserve(); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}
	if !b.TryClose(true) {
		t.Fatalf("timeout close with cursor=2 should win")
	}
	if b.TryClose(true) {
		t.Fatalf("second close must lose")
	}
	if b.State() != StateClosing {
		t.Fatalf("state = %s, want closing", b.State())
	}
	if _, _, err := b.reserve(); !errors.Is(err, errFull) {
		t.Fatalf("reserve on closing batch: want errFull, got %v", err)
	}
}

func TestBatchTryClose_SingleWinner(t *testing.T) {
	b := newBatch(0, 2, 1, nil)
	b.reserve()
	b.reserve()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryClose(i%2 == 0) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestBatchDispatch_WaitsForAllWrites(t *testing.T) {
	b := newBatch(0, 2, 2, nil)
	i0, g0, _ := b.reserve()
	i1, g1, _ := b.reserve()
	if err := b.write(i0, g0, []byte{1, 2}, newHandle(i0, g0)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !b.TryClose(false) {
		t.Fatalf("full batch should close")
	}
	if b.AllWritesDone() {
		t.Fatalf("one writer still copying")
	}
	if _, _, ok := b.beginDispatch(); ok {
		t.Fatalf("dispatch must wait for the second write")
	}
	if err := b.write(i1, g1, []byte{3, 4}, newHandle(i1, g1)); err != nil {
		t.Fatalf("write: %v", err)
	}
	count, gen, ok := b.beginDispatch()
	if !ok || count != 2 || gen != 0 {
		t.Fatalf("beginDispatch = %d,%d,%v", count, gen, ok)
	}
	if got := b.inputs(count); string(got) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("inputs = %v", got)
	}
}

func TestBatchDeliver_LastDeliveryRecycles(t *testing.T) {
	recycled := 0
	b := newBatch(0, 2, 1, func() { recycled++ })
	handles := make([]*Handle, 2)
	for i := range handles {
		idx, gen, _ := b.reserve()
		handles[i] = newHandle(idx, gen)
		if err := b.write(idx, gen, []byte{byte(i)}, handles[i]); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	b.TryClose(false)
	count, _, _ := b.beginDispatch()
	if !b.beginDrain() {
		t.Fatalf("beginDrain failed")
	}
	if !b.deliver(0, count, []byte("a"), nil) {
		t.Fatalf("handle 0 should be waiting")
	}
	if b.State() != StateDraining || recycled != 0 {
		t.Fatalf("batch recycled before last delivery")
	}
	handles[1].Cancel()
	if b.deliver(1, count, []byte("b"), nil) {
		t.Fatalf("cancelled handle must not receive a result")
	}
	if recycled != 1 {
		t.Fatalf("recycled = %d, want 1", recycled)
	}
	w := b.load()
	if w.state() != StateFilling || w.cursor() != 0 || w.completed() != 0 || w.gen() != 1 {
		t.Fatalf("unexpected word after reset: state=%s cursor=%d completed=%d gen=%d", w.state(), w.cursor(), w.completed(), w.gen())
	}
	res, err := handles[0].Result()
	if err != nil || string(res.Output) != "a" || res.BatchSize != 2 {
		t.Fatalf("handle 0 result = %+v, %v", res, err)
	}
}

func TestBatchWrite_StaleGenerationDetected(t *testing.T) {
	b := newBatch(0, 1, 1, nil)
	idx, gen, _ := b.reserve()
	if err := b.write(idx, gen, []byte{1}, newHandle(idx, gen)); err != nil {
		t.Fatalf("write: %v", err)
	}
	b.TryClose(false)
	b.beginDispatch()
	b.beginDrain()
	b.deliver(0, 1, []byte{2}, nil)
	if b.Generation() != gen+1 {
		t.Fatalf("generation = %d, want %d", b.Generation(), gen+1)
	}
	if err := b.write(idx, gen, []byte{9}, newHandle(idx, gen)); !errors.Is(err, errStale) {
		t.Fatalf("write against old generation: want errStale, got %v", err)
	}
	if c := b.load().completed(); c != 0 {
		t.Fatalf("stale write was committed: completed=%d", c)
	}
}

func TestBatchGenerations_StrictlyIncrease(t *testing.T) {
	b := newBatch(0, 3, 1, nil)
	last := b.Generation()
	for cycle := 0; cycle < 20; cycle++ {
		n := cycle%3 + 1
		for i := 0; i < n; i++ {
			idx, gen, err := b.reserve()
			if err != nil {
				t.Fatalf("cycle %d reserve: %v", cycle, err)
			}
			_ = b.write(idx, gen, []byte{0}, newHandle(idx, gen))
		}
		b.TryClose(true)
		count, _, ok := b.beginDispatch()
		if !ok || count != n {
			t.Fatalf("cycle %d: beginDispatch = %d, %v", cycle, count, ok)
		}
		b.beginDrain()
		for i := 0; i < count; i++ {
			b.deliver(i, count, nil, nil)
		}
		if g := b.Generation(); g <= last {
			t.Fatalf("cycle %d: generation %d did not increase past %d", cycle, g, last)
		}
		last = b.Generation()
	}
}
