package queue

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	tests := []struct {
		name   string
		values []int
	}{
		{name: "single value", values: []int{1}},
		{name: "two values", values: []int{1, 2}},
		{name: "many values", values: []int{5, 3, 9, 1, 7, 2, 8}},
		{name: "duplicates", values: []int{4, 4, 1, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New[int]()
			for _, v := range tt.values {
				q.Send(v)
			}
			require.Equal(t, len(tt.values), q.Len())

			got := make([]int, 0, len(tt.values))
			for range tt.values {
				v, err := q.Receive(context.Background())
				require.NoError(t, err)
				got = append(got, v)
			}

			assert.Equal(t, tt.values, got, "values should be received in send order")
			assert.Equal(t, 0, q.Len())
		})
	}
}

func TestQueue_NoLostUpdates(t *testing.T) {
	const n = 1000
	q := New[int]()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			q.Send(v)
		}(i)
	}

	results := make(chan int, n)
	var rwg sync.WaitGroup
	for i := 0; i < n; i++ {
		rwg.Add(1)
		go func() {
			defer rwg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			v, err := q.Receive(ctx)
			if err != nil {
				return
			}
			results <- v
		}()
	}

	wg.Wait()
	rwg.Wait()
	close(results)

	got := make([]int, 0, n)
	for v := range results {
		got = append(got, v)
	}
	sort.Ints(got)

	require.Len(t, got, n, "every sent value should be received exactly once")
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ReceiveBlocksUntilSend(t *testing.T) {
	q := New[string]()
	received := make(chan string, 1)

	go func() {
		v, err := q.Receive(context.Background())
		if err == nil {
			received <- v
		}
	}()

	select {
	case v := <-received:
		t.Fatalf("receive returned %q before any send", v)
	case <-time.After(50 * time.Millisecond):
	}

	q.Send("hello")

	select {
	case v := <-received:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("receive did not return after send")
	}
}

func TestQueue_MultipleWaiters(t *testing.T) {
	const waiters = 8
	q := New[int]()

	results := make(chan int, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			v, err := q.Receive(context.Background())
			if err == nil {
				results <- v
			}
		}()
	}

	// Let the receivers block before sending in a burst
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < waiters; i++ {
		q.Send(i)
	}

	seen := make(map[int]bool)
	for i := 0; i < waiters; i++ {
		select {
		case v := <-results:
			assert.False(t, seen[v], "value %d delivered twice", v)
			seen[v] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d waiters were woken", i, waiters)
		}
	}
}

func TestQueue_ReceiveCanceled(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Receive(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCanceled))
		assert.True(t, errors.Is(err, context.Canceled))
		assert.False(t, errors.Is(err, ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("receive did not observe cancellation")
	}
}

func TestQueue_ReceivePrefersBufferedValueOverCanceledContext(t *testing.T) {
	q := New[int]()
	q.Send(42)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestQueue_Close(t *testing.T) {
	q := New[int]()
	q.Send(1)
	q.Send(2)
	q.Close()
	q.Close() // idempotent

	v, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = q.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = q.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_CloseWakesBlockedReceivers(t *testing.T) {
	q := New[int]()

	const waiters = 4
	errCh := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, err := q.Receive(context.Background())
			errCh <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("close did not wake all receivers")
		}
	}
}

func TestQueue_TryReceive(t *testing.T) {
	q := New[int]()

	_, ok := q.TryReceive()
	assert.False(t, ok, "empty queue should not yield a value")

	q.Send(10)
	q.Send(20)

	v, ok := q.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, q.Len())
}
