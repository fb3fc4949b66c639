package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/queue"
)

func TestFIFOOrder(t *testing.T) {
	t.Parallel()

	q := queue.New(8)
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, q.Push(ctx, []byte{byte(i)}))
	}
	assert.Equal(t, 5, q.Len())

	for i := range 5 {
		p, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, p)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestPopDrainsAfterClose(t *testing.T) {
	t.Parallel()

	q := queue.New(4)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, []byte("a")))
	require.NoError(t, q.Push(ctx, []byte("b")))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Push(ctx, []byte("c")), queue.ErrClosed)

	p, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(p))
	p, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(p))
	_, err = q.Pop(ctx)
	require.ErrorIs(t, err, queue.ErrClosed)
}

func TestPushBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := queue.New(1)
	require.NoError(t, q.Push(context.Background(), []byte{1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Push(ctx, []byte{2}), context.DeadlineExceeded)
}

func TestCloseUnblocksPush(t *testing.T) {
	t.Parallel()

	q := queue.New(1)
	require.NoError(t, q.Push(context.Background(), []byte{1}))

	errCh := make(chan error, 1)
	go func() { errCh <- q.Push(context.Background(), []byte{2}) }()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, queue.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("push did not unblock")
	}
}

func TestConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	t.Parallel()

	const producers, perProducer = 4, 100
	q := queue.New(16)
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := range producers {
		wg.Go(func() {
			for i := range perProducer {
				_ = q.Push(ctx, fmt.Appendf(nil, "%d:%03d", p, i))
			}
		})
	}
	go func() {
		wg.Wait()
		q.Close()
	}()

	last := make(map[byte]string)
	count := 0
	for {
		item, err := q.Pop(ctx)
		if err != nil {
			require.ErrorIs(t, err, queue.ErrClosed)
			break
		}
		key := item[0]
		assert.Greater(t, string(item), last[key])
		last[key] = string(item)
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}
