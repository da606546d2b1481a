package bg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunner_SameKeyRunsInOrder(t *testing.T) {
	r := New(time.Second, nil)

	var mu sync.Mutex
	var got []int
	release := make(chan struct{})

	r.Do("a", func(ctx context.Context) {
		<-release
		mu.Lock()
		got = append(got, 1)
		mu.Unlock()
	})
	for i := 2; i <= 5; i++ {
		r.Do("a", func(ctx context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	close(release)

	require.NoError(t, r.Wait(context.Background()))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestRunner_DifferentKeysIndependent(t *testing.T) {
	r := New(0, nil)

	block := make(chan struct{})
	done := make(chan struct{})

	r.Do("slow", func(ctx context.Context) { <-block })
	r.Do("fast", func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task on another key was blocked")
	}
	close(block)
	require.NoError(t, r.Wait(context.Background()))
}

func TestRunner_TimeoutReachesTask(t *testing.T) {
	r := New(10*time.Millisecond, nil)

	var err error
	r.Do("k", func(ctx context.Context) {
		<-ctx.Done()
		err = ctx.Err()
	})
	require.NoError(t, r.Wait(context.Background()))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunner_PanicIsContained(t *testing.T) {
	r := New(0, nil)

	ran := false
	r.Do("k", func(ctx context.Context) { panic("boom") })
	r.Do("k", func(ctx context.Context) { ran = true })

	require.NoError(t, r.Wait(context.Background()))
	assert.True(t, ran, "queue should continue after a panic")
}

func TestRunner_WaitHonoursContext(t *testing.T) {
	r := New(0, nil)
	block := make(chan struct{})
	r.Do("k", func(ctx context.Context) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)

	close(block)
	require.NoError(t, r.Wait(context.Background()))
}
