package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu         sync.Mutex
	events     []string
	connectErr error
	publishErr error
}

func (f *fakeTransport) record(e string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeTransport) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeTransport) Connect() error {
	f.record("connect")
	return f.connectErr
}

func (f *fakeTransport) Publish(payload []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.record("pub " + string(payload))
	return nil
}

func (f *fakeTransport) Announce(online bool) error {
	if online {
		f.record("online")
	} else {
		f.record("offline")
	}
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.record("disconnect")
}

type outcome struct {
	msg Message
	err error
}

// scripted returns the outcomes in order and repeats the last one.
func scripted(outcomes ...outcome) Action {
	i := 0
	return ActionFunc(func(context.Context) (Message, error) {
		o := outcomes[min(i, len(outcomes)-1)]
		i++
		return o.msg, o.err
	})
}

type fakeObserver struct {
	published    int
	availability []bool
}

func (o *fakeObserver) Published(string, []byte) { o.published++ }

func (o *fakeObserver) Availability(_ string, online bool) {
	o.availability = append(o.availability, online)
}

// runTicks runs the loop synchronously and stops it after n sleeps.
func runTicks(t *testing.T, l *Loop, n int) ([]time.Duration, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	l.after = func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		if len(delays) >= n {
			cancel()
		}
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	err := l.Run(ctx)
	return delays, err
}

var ok = outcome{msg: Message{"price": 12.5, "slot": 3}}

func TestSuccessfulRunsUseExecutionDelay(t *testing.T) {
	tr := &fakeTransport{}
	l := NewLoop("price", scripted(ok), tr, Options{ExecutionDelay: 30 * time.Second, ExceptionDelay: 5 * time.Minute})

	delays, err := runTicks(t, l, 2)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, delays)
	assert.Equal(t, []string{
		"connect",
		"online",
		`pub {"price":12.5,"slot":3}`,
		"online",
		`pub {"price":12.5,"slot":3}`,
		"online",
		"offline",
		"disconnect",
	}, tr.Events())
	assert.Equal(t, StateStopped, l.State())
	assert.False(t, l.Online())
}

func TestFailedRunsUseExceptionDelay(t *testing.T) {
	tests := []struct {
		name    string
		outcome outcome
	}{
		{name: "error", outcome: outcome{err: errors.New("no prices")}},
		{name: "empty message", outcome: outcome{msg: Message{}}},
		{name: "nil message", outcome: outcome{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{}
			l := NewLoop("price", scripted(tt.outcome), tr, Options{ExecutionDelay: time.Second, ExceptionDelay: time.Minute})

			delays, err := runTicks(t, l, 1)
			require.NoError(t, err)

			assert.Equal(t, []time.Duration{time.Minute}, delays)
			assert.Equal(t, []string{"connect", "online", "offline", "offline", "disconnect"}, tr.Events())
		})
	}
}

func TestDelayFollowsOutcome(t *testing.T) {
	fail := outcome{err: errors.New("boom")}
	tr := &fakeTransport{}
	l := NewLoop("price", scripted(ok, fail, fail, ok), tr, Options{ExecutionDelay: time.Second, ExceptionDelay: time.Minute})

	delays, err := runTicks(t, l, 5)
	require.NoError(t, err)

	// No growth across repeated failures.
	assert.Equal(t, []time.Duration{time.Second, time.Minute, time.Minute, time.Second, time.Second}, delays)
}

func TestDefaultDelays(t *testing.T) {
	l := NewLoop("price", scripted(ok), &fakeTransport{}, Options{})
	assert.Equal(t, DefaultDelay, l.opts.ExecutionDelay)
	assert.Equal(t, DefaultDelay, l.opts.ExceptionDelay)
	assert.Equal(t, 5*time.Minute, DefaultDelay)
}

func TestConnectFailureIsFatal(t *testing.T) {
	called := false
	action := ActionFunc(func(context.Context) (Message, error) {
		called = true
		return nil, nil
	})
	tr := &fakeTransport{connectErr: errors.New("connection refused")}
	l := NewLoop("price", action, tr, Options{})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, ErrConnect)
	assert.False(t, called)
	assert.Equal(t, []string{"connect"}, tr.Events())
	assert.Equal(t, StateStopped, l.State())
}

func TestPanickingActionIsAFailure(t *testing.T) {
	action := ActionFunc(func(context.Context) (Message, error) {
		panic("sensor exploded")
	})
	tr := &fakeTransport{}
	l := NewLoop("sensors", action, tr, Options{ExecutionDelay: time.Second, ExceptionDelay: time.Minute})

	delays, err := runTicks(t, l, 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Minute}, delays)
}

func TestPublishFailureGoesOffline(t *testing.T) {
	tr := &fakeTransport{publishErr: errors.New("not connected")}
	l := NewLoop("price", scripted(ok), tr, Options{ExecutionDelay: time.Second, ExceptionDelay: time.Minute})

	delays, err := runTicks(t, l, 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Minute}, delays)
	assert.Equal(t, []string{"connect", "online", "offline", "offline", "disconnect"}, tr.Events())
}

func TestCancelledBeforeFirstTickStillGoesOffline(t *testing.T) {
	tr := &fakeTransport{}
	l := NewLoop("price", scripted(ok), tr, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))

	assert.Equal(t, []string{"connect", "online", "offline", "disconnect"}, tr.Events())
}

func TestObserverSeesChanges(t *testing.T) {
	obs := &fakeObserver{}
	fail := outcome{err: errors.New("boom")}
	l := NewLoop("price", scripted(ok, ok, fail, ok), &fakeTransport{}, Options{Observer: obs})

	_, err := runTicks(t, l, 4)
	require.NoError(t, err)

	assert.Equal(t, 3, obs.published)
	assert.Equal(t, []bool{true, false, true, false}, obs.availability)
}

func TestStopsWhileSleeping(t *testing.T) {
	tr := &fakeTransport{}
	l := NewLoop("price", scripted(ok), tr, Options{ExecutionDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(tr.Events()) >= 4 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	events := tr.Events()
	assert.Equal(t, []string{"offline", "disconnect"}, events[len(events)-2:])
}
