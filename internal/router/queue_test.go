package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plent/internal/platform"
)

func msgEvent(id platform.MessageID) platform.Event {
	return platform.Event{
		Type:    platform.EventMessageCreate,
		Message: &platform.Message{Ref: platform.MessageRef{Message: id}},
	}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	for i := 1; i <= 3; i++ {
		require.True(t, q.Enqueue(msgEvent(platform.MessageID(i))))
	}
	assert.Equal(t, 3, q.Len())

	for i := 1; i <= 3; i++ {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, platform.MessageID(i), e.Message.Ref.Message)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestEventQueue_CloseRejectsAndWakes(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(msgEvent(1)))
	assert.True(t, q.isClosed())

	_, open := <-q.Wait()
	assert.False(t, open)
}

func TestEventQueue_SignalCoalesces(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(msgEvent(1))
	q.Enqueue(msgEvent(2))

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("expected a single coalesced signal")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Enqueue(msgEvent(platform.MessageID(g*100 + i)))
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 400, q.Len())
}
