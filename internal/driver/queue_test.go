package driver

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bepsel/internal/bep"
)

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q := newEventQueue()

	ok := q.Enqueue(bep.NamedSet("1"))
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, bep.KindNamedSet, got.Kind())
	assert.Equal(t, "1", got.ID.NamedSet.ID)
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for _, id := range []string{"A", "B", "C"} {
		q.Enqueue(bep.NamedSet(id))
	}

	for _, want := range []string{"A", "B", "C"} {
		ev, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, ev.ID.NamedSet.ID)
	}
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_TryDequeue_Empty(t *testing.T) {
	q := newEventQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_WaitSignalsEnqueue(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(bep.NamedSet("late"))
	}()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
	}

	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "late", ev.ID.NamedSet.ID)
}

func TestEventQueue_SignalsCoalesce(t *testing.T) {
	q := newEventQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(bep.NamedSet("x"))
	}

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("expected a single pending signal")
	default:
	}
	assert.Equal(t, 5, q.Len())
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(bep.NamedSet("kept"))

	q.Close()
	q.Close() // idempotent

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(bep.NamedSet("dropped")), "enqueue after close should fail")

	// Closed queue still drains.
	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "kept", ev.ID.NamedSet.ID)

	// Wait fires forever once closed.
	for i := 0; i < 3; i++ {
		select {
		case <-q.Wait():
		default:
			t.Fatal("wait should fire after close")
		}
	}
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()

	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(bep.NamedSet("x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
}
