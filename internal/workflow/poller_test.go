package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	Value    string
	Terminal bool
}

// scriptedFetch returns each snapshot in order, repeating the last one
// once the script is exhausted.
func scriptedFetch(script []fakeStatus) func(context.Context, string) (fakeStatus, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, id string) (fakeStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		if i < len(script)-1 {
			s := script[i]
			i++
			return s, nil
		}
		return script[len(script)-1], nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPollerDeliversUntilTerminal(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var doneCount int

	poller, err := NewPoller(PollerConfig[fakeStatus]{
		Fetch: scriptedFetch([]fakeStatus{
			{Value: "pending"},
			{Value: "processing"},
			{Value: "completed", Terminal: true},
		}),
		IsTerminal: func(s fakeStatus) bool { return s.Terminal },
		Interval:   10 * time.Millisecond,
		OnStatus: func(s fakeStatus) {
			mu.Lock()
			seen = append(seen, s.Value)
			mu.Unlock()
		},
		OnDone: func(s fakeStatus) {
			mu.Lock()
			doneCount++
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.NoError(t, poller.Start(context.Background(), "job-1"))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return doneCount > 0
	})

	// Give a stray extra tick the chance to misfire before asserting.
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"pending", "processing", "completed"}, seen)
	assert.Equal(t, 1, doneCount, "OnDone must fire exactly once")
}

func TestPollerFetchesImmediately(t *testing.T) {
	fetched := make(chan struct{}, 1)
	poller, err := NewPoller(PollerConfig[fakeStatus]{
		Fetch: func(ctx context.Context, id string) (fakeStatus, error) {
			select {
			case fetched <- struct{}{}:
			default:
			}
			return fakeStatus{Value: "done", Terminal: true}, nil
		},
		IsTerminal: func(s fakeStatus) bool { return s.Terminal },
		Interval:   time.Hour, // only the initial fetch can happen
	})
	require.NoError(t, err)
	require.NoError(t, poller.Start(context.Background(), "job-1"))

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("first fetch should not wait for the interval")
	}
}

func TestPollerRejectsDoubleStart(t *testing.T) {
	poller, err := NewPoller(PollerConfig[fakeStatus]{
		Fetch: func(ctx context.Context, id string) (fakeStatus, error) {
			return fakeStatus{Value: "pending"}, nil
		},
		IsTerminal: func(s fakeStatus) bool { return s.Terminal },
		Interval:   10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, poller.Start(context.Background(), "job-1"))
	assert.Error(t, poller.Start(context.Background(), "job-1"))

	// A different id is fine.
	assert.NoError(t, poller.Start(context.Background(), "job-2"))
	poller.StopAll()
}

func TestPollerStopDiscardsLateResults(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	delivered := 0

	poller, err := NewPoller(PollerConfig[fakeStatus]{
		Fetch: func(ctx context.Context, id string) (fakeStatus, error) {
			<-release
			return fakeStatus{Value: "completed", Terminal: true}, nil
		},
		IsTerminal: func(s fakeStatus) bool { return s.Terminal },
		Interval:   10 * time.Millisecond,
		OnStatus: func(s fakeStatus) {
			mu.Lock()
			delivered++
			mu.Unlock()
		},
		OnDone: func(s fakeStatus) {
			mu.Lock()
			delivered++
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.NoError(t, poller.Start(context.Background(), "job-1"))
	poller.Stop("job-1")
	close(release) // the in-flight fetch now returns, too late

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, delivered, "no callback may fire after Stop")
}

func TestPollerToleratesTransientErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	done := make(chan fakeStatus, 1)

	poller, err := NewPoller(PollerConfig[fakeStatus]{
		Fetch: func(ctx context.Context, id string) (fakeStatus, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n < 3 {
				return fakeStatus{}, fmt.Errorf("connection reset")
			}
			return fakeStatus{Value: "completed", Terminal: true}, nil
		},
		IsTerminal: func(s fakeStatus) bool { return s.Terminal },
		Interval:   10 * time.Millisecond,
		OnDone:     func(s fakeStatus) { done <- s },
	})
	require.NoError(t, err)
	require.NoError(t, poller.Start(context.Background(), "job-1"))

	select {
	case s := <-done:
		assert.Equal(t, "completed", s.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("poller gave up after transient errors")
	}
}

func TestPollerLatest(t *testing.T) {
	poller, err := NewPoller(PollerConfig[fakeStatus]{
		Fetch: func(ctx context.Context, id string) (fakeStatus, error) {
			return fakeStatus{Value: "processing"}, nil
		},
		IsTerminal: func(s fakeStatus) bool { return s.Terminal },
		Interval:   10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, ok := poller.Latest("job-1")
	assert.False(t, ok, "no snapshot before Start")

	require.NoError(t, poller.Start(context.Background(), "job-1"))
	waitFor(t, func() bool {
		_, ok := poller.Latest("job-1")
		return ok
	})
	snap, ok := poller.Latest("job-1")
	require.True(t, ok)
	assert.Equal(t, "processing", snap.Value)
	poller.StopAll()
}

func TestPollerContextCancelStopsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	calls := 0

	poller, err := NewPoller(PollerConfig[fakeStatus]{
		Fetch: func(ctx context.Context, id string) (fakeStatus, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return fakeStatus{Value: "pending"}, nil
		},
		IsTerminal: func(s fakeStatus) bool { return s.Terminal },
		Interval:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, poller.Start(ctx, "job-1"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	})
	cancel()
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	at := calls
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, calls, at+1, "polling must stop after cancel")
}
