package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoikida/Orthrus/internal/logmgr"
)

func TestPushPopFIFO(t *testing.T) {
	r := New(4)
	frames := []*logmgr.Frame{{}, {}, {}}
	for _, f := range frames {
		ok := r.Push(f, nil)
		require.True(t, ok)
	}
	for _, want := range frames {
		got, ok := r.Pop(nil)
		require.True(t, ok)
		require.Same(t, want, got)
	}
}

func TestCapacityIsPowerOfTwo(t *testing.T) {
	require.Panics(t, func() { New(3) })
	require.NotPanics(t, func() { New(8) })
}

func TestPushBlocksWhenFullUntilPop(t *testing.T) {
	r := New(2)
	require.True(t, r.Push(&logmgr.Frame{}, nil))
	require.True(t, r.Push(&logmgr.Frame{}, nil))

	pushed := make(chan bool, 1)
	go func() {
		pushed <- r.Push(&logmgr.Frame{}, nil)
	}()

	_, ok := r.Pop(nil)
	require.True(t, ok)
	require.True(t, <-pushed)
}

func TestConcurrentProducerConsumerNoLossNoDuplication(t *testing.T) {
	r := New(64)
	const n = 5000
	frames := make([]*logmgr.Frame, n)
	for i := range frames {
		frames[i] = &logmgr.Frame{}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for _, f := range frames {
			r.Push(f, nil)
		}
	}()

	seen := make(map[*logmgr.Frame]bool, n)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			f, ok := r.Pop(nil)
			require.True(t, ok)
			require.False(t, seen[f], "frame dequeued twice")
			seen[f] = true
		}
	}()

	wg.Wait()
	require.Len(t, seen, n)
}
