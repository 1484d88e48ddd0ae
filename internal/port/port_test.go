package port

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type msg struct {
	N int `json:"n"`
}

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := Pipe("proxy-stream")
	assert.Equal(t, "proxy-stream", a.Name())
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, a.Send(ctx, msg{N: i}))
	}
	for i := 0; i < 100; i++ {
		var m msg
		require.NoError(t, b.Receive(ctx, &m))
		assert.Equal(t, i, m.N)
	}
}

func TestPipeEndsShareID(t *testing.T) {
	a, b := Pipe("proxy-stream")
	c, _ := Pipe("proxy-stream")
	if a.ID() == "" || a.ID() != b.ID() {
		t.Fatalf("pipe ends should share an id, got %q and %q", a.ID(), b.ID())
	}
	if c.ID() == a.ID() {
		t.Fatalf("separate pipes reused id %q", a.ID())
	}
}

func TestPipeDeliversMessagesSentBeforeClose(t *testing.T) {
	a, b := Pipe("p")
	ctx := context.Background()
	require.NoError(t, a.Send(ctx, msg{N: 1}))
	require.NoError(t, a.Send(ctx, msg{N: 2}))
	require.NoError(t, a.Close())

	var m msg
	require.NoError(t, b.Receive(ctx, &m))
	assert.Equal(t, 1, m.N)
	require.NoError(t, b.Receive(ctx, &m))
	assert.Equal(t, 2, m.N)
	assert.ErrorIs(t, b.Receive(ctx, &m), ErrClosed)
	// stays closed
	assert.ErrorIs(t, b.Receive(ctx, &m), ErrClosed)
}

func TestPipeCloseIsIdempotentAndSymmetric(t *testing.T) {
	a, b := Pipe("p")
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Send(context.Background(), msg{}), ErrClosed)
	var m msg
	assert.ErrorIs(t, a.Receive(context.Background(), &m), ErrClosed)
}

func TestPipeReceiveHonoursContext(t *testing.T) {
	_, b := Pipe("p")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var m msg
	err := b.Receive(ctx, &m)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPipeReceiveWakesOnSend(t *testing.T) {
	a, b := Pipe("p")
	var wg sync.WaitGroup
	wg.Add(1)
	var got msg
	var err error
	go func() {
		defer wg.Done()
		err = b.Receive(context.Background(), &got)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Send(context.Background(), msg{N: 7}))
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, got.N)
}

func TestPipeConcurrentSenders(t *testing.T) {
	a, b := Pipe("p")
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = a.Send(ctx, msg{N: i})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, a.Close())

	count := 0
	for {
		var m msg
		if err := b.Receive(ctx, &m); err != nil {
			assert.ErrorIs(t, err, ErrClosed)
			break
		}
		count++
	}
	assert.Equal(t, 200, count)
}

func TestPipeSendRejectsUnencodable(t *testing.T) {
	a, _ := Pipe("p")
	assert.Error(t, a.Send(context.Background(), make(chan int)))
}
