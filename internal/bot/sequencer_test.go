package bot

import (
	"context"
	"errors"
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

func TestSequencer_FIFO(t *testing.T) {
	s := NewSequencer()
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}

	// A дольше всех работает внутри, C: быстрее всех
	delays := map[string]time.Duration{"A": 30 * time.Millisecond, "B": 10 * time.Millisecond, "C": 0}
	var wg sync.WaitGroup
	for _, name := range []string{"A", "B", "C"} {
		tok := s.Enter("poll")
		wg.Add(1)
		go func(name string, tok *Ticket) {
			defer wg.Done()
			defer tok.Release()
			assert.NoError(t, tok.Wait(ctx))
			time.Sleep(delays[name])
			record(name)
		}(name, tok)
	}
	wg.Wait()

	assert.Equal(t, []string{"A", "B", "C"}, order)
}

func TestSequencer_ErrorStillReleases(t *testing.T) {
	s := NewSequencer()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Do(ctx, "poll", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Do(ctx, "poll", func(context.Context) error { return nil }))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second command is stuck behind a failed one")
	}
}

func TestSequencer_KeysIndependent(t *testing.T) {
	s := NewSequencer()
	ctx := context.Background()

	first := s.Enter("poll")
	other := s.Enter("mensa")
	require.NoError(t, other.Wait(ctx))
	other.Release()
	first.Release()
}

func TestSequencer_ReleaseIdempotent(t *testing.T) {
	s := NewSequencer()
	tok := s.Enter("poll")
	tok.Release()
	tok.Release()

	next := s.Enter("poll")
	require.NoError(t, next.Wait(context.Background()))
	next.Release()
}

func TestSequencer_CancelledWaitKeepsOrder(t *testing.T) {
	s := NewSequencer()
	first := s.Enter("poll")

	ctx, cancel := context.WithCancel(context.Background())
	second := s.Enter("poll")
	cancel()
	assert.ErrorIs(t, second.Wait(ctx), context.Canceled)
	second.Release()

	// третий встаёт за вторым и ждёт первого
	third := s.Enter("poll")
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	assert.ErrorIs(t, third.Wait(waitCtx), context.DeadlineExceeded)
	third.Release()

	first.Release()
	last := s.Enter("poll")
	require.NoError(t, last.Wait(context.Background()))
	last.Release()
}
