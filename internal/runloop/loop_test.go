package runloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startLoop(t *testing.T) (*Loop, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := New(zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop, ctx
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	loop, ctx := startLoop(t)

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, loop.Post(func() { got = append(got, i) }))
	}

	// Do は投入済みの関数がすべて終わった後に実行される
	var snapshot []int
	require.NoError(t, loop.Do(ctx, func() { snapshot = append(snapshot, got...) }))

	require.Len(t, snapshot, 50)
	for i, v := range snapshot {
		assert.Equal(t, i, v)
	}
}

func TestLoop_PostFromLoopDoesNotDeadlock(t *testing.T) {
	loop, ctx := startLoop(t)

	var count int
	var post func()
	post = func() {
		count++
		if count < 1000 {
			loop.Post(post)
		}
	}
	loop.Post(post)

	require.Eventually(t, func() bool {
		var c int
		_ = loop.Do(ctx, func() { c = count })
		return c == 1000
	}, time.Second, 5*time.Millisecond)
}

func TestLoop_SingleGoroutineExecution(t *testing.T) {
	loop, ctx := startLoop(t)

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = loop.Do(ctx, func() {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestLoop_After(t *testing.T) {
	loop, ctx := startLoop(t)

	fired := make(chan time.Time, 1)
	start := time.Now()
	loop.After(20*time.Millisecond, func() { fired <- time.Now() })

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 20*time.Millisecond)
	case <-ctx.Done():
		t.Fatal("context cancelled")
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoop_AfterStop(t *testing.T) {
	loop, ctx := startLoop(t)

	fired := false
	timer := loop.After(20*time.Millisecond, func() { fired = true })
	assert.True(t, timer.Stop())

	time.Sleep(40 * time.Millisecond)
	var got bool
	require.NoError(t, loop.Do(ctx, func() { got = fired }))
	assert.False(t, got)
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	loop, ctx := startLoop(t)

	loop.Post(func() { panic("boom") })

	ran := false
	require.NoError(t, loop.Do(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_StoppedRejectsPost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := New(nil)

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.NoError(t, loop.Do(ctx, func() {}))
	cancel()
	require.NoError(t, <-done)

	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Do(context.Background(), func() {}), ErrStopped)
	assert.ErrorIs(t, loop.Run(context.Background()), ErrStopped)
}

func TestLoop_RunTwice(t *testing.T) {
	loop, _ := startLoop(t)

	// 起動済みであることを保証する
	require.NoError(t, loop.Do(context.Background(), func() {}))
	assert.ErrorIs(t, loop.Run(context.Background()), ErrAlreadyRunning)
}
