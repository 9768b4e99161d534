package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream blew up")

func testConfig(clock func() time.Time) Config {
	return Config{
		Name:                     "user-service",
		Window:                   10 * time.Second,
		Buckets:                  10,
		VolumeThreshold:          4,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             30 * time.Second,
		CallTimeout:              time.Second,
		Clock:                    clock,
	}
}

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

func fail(ctx context.Context) error    { return errDownstream }
func succeed(ctx context.Context) error { return nil }

func TestClosedPassesThrough(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(testConfig(fixedClock(&now)))

	require.NoError(t, b.Execute(context.Background(), succeed))
	require.Equal(t, StateClosed, b.State())
	require.Equal(t, uint64(1), b.Stats().Fires)
	require.Equal(t, uint64(1), b.Stats().Successes)
}

func TestOpensAtVolumeAndErrorThreshold(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(testConfig(fixedClock(&now)))

	// Three failures: under the volume threshold, still closed.
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Execute(context.Background(), fail), errDownstream)
	}
	require.Equal(t, StateClosed, b.State())

	// Fourth call reaches volume threshold at 100% failures.
	require.ErrorIs(t, b.Execute(context.Background(), fail), errDownstream)
	require.Equal(t, StateOpen, b.State())

	// Next call is rejected without invoking the function.
	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpen)
	require.False(t, invoked)
	require.Equal(t, uint64(1), b.Stats().Rejects)
}

func TestStaysClosedBelowErrorPercentage(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(testConfig(fixedClock(&now)))

	// 1 failure out of 5 calls = 20%, under the 50% threshold.
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Execute(context.Background(), succeed))
	}
	require.ErrorIs(t, b.Execute(context.Background(), fail), errDownstream)
	require.Equal(t, StateClosed, b.State())
}

func TestRollingWindowForgetsOldFailures(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(testConfig(fixedClock(&now)))

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Execute(context.Background(), fail), errDownstream)
	}

	// Slide past the window: old failures no longer count toward volume.
	now = now.Add(11 * time.Second)
	require.ErrorIs(t, b.Execute(context.Background(), fail), errDownstream)
	require.Equal(t, StateClosed, b.State())
}

func TestHalfOpenTrialSuccessCloses(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(testConfig(fixedClock(&now)))

	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, b.State())

	now = now.Add(31 * time.Second)
	require.NoError(t, b.Execute(context.Background(), succeed))
	require.Equal(t, StateClosed, b.State())

	// Counters were reset: a single failure must not instantly re-open.
	require.ErrorIs(t, b.Execute(context.Background(), fail), errDownstream)
	require.Equal(t, StateClosed, b.State())
}

func TestHalfOpenTrialFailureReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(testConfig(fixedClock(&now)))

	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	now = now.Add(31 * time.Second)
	require.ErrorIs(t, b.Execute(context.Background(), fail), errDownstream)
	require.Equal(t, StateOpen, b.State())

	// openedAt was refreshed: still rejecting before another full reset.
	now = now.Add(10 * time.Second)
	require.ErrorIs(t, b.Execute(context.Background(), succeed), ErrOpen)
}

func TestHalfOpenAllowsExactlyOneTrial(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(testConfig(fixedClock(&now)))

	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	now = now.Add(31 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(context.Background(), func(ctx context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// Concurrent call during the trial is rejected.
	require.ErrorIs(t, b.Execute(context.Background(), succeed), ErrOpen)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, StateClosed, b.State())
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	now := time.Unix(1000, 0)
	cfg := testConfig(fixedClock(&now))
	cfg.CallTimeout = 10 * time.Millisecond
	b := New(cfg)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, uint64(1), b.Stats().Timeouts)
	require.Equal(t, uint64(0), b.Stats().Failures)
}

func TestStateChangeEvents(t *testing.T) {
	now := time.Unix(1000, 0)
	cfg := testConfig(fixedClock(&now))
	var transitions []string
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}
	b := New(cfg)

	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	now = now.Add(31 * time.Second)
	_ = b.Execute(context.Background(), succeed)

	require.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF_OPEN", "HALF_OPEN>CLOSED"}, transitions)
}

func TestSetIsolatesServices(t *testing.T) {
	now := time.Unix(1000, 0)
	set := NewSet(testConfig(fixedClock(&now)))

	userBreaker := set.Get("user-service")
	for i := 0; i < 4; i++ {
		_ = userBreaker.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, set.Get("user-service").State())
	require.Equal(t, StateClosed, set.Get("market-service").State())

	snap := set.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "market-service", snap[0].Service)
	require.True(t, snap[0].IsHealthy)
	require.Equal(t, "user-service", snap[1].Service)
	require.False(t, snap[1].IsHealthy)
}
