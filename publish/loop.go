package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const DefaultDelay = 5 * time.Minute

var ErrConnect = errors.New("transport connect failed")

// Message is the result of one successful Action, published as JSON.
type Message map[string]any

// Action produces the next message. An error or an empty message marks
// the publisher as offline until a later run succeeds.
type Action interface {
	Execute(ctx context.Context) (Message, error)
}

type ActionFunc func(ctx context.Context) (Message, error)

func (f ActionFunc) Execute(ctx context.Context) (Message, error) {
	return f(ctx)
}

// Transport is the pub/sub session of one loop.
type Transport interface {
	Connect() error
	Publish(payload []byte) error
	Announce(online bool) error
	Disconnect()
}

// Observer gets told about every publish and availability change.
type Observer interface {
	Published(name string, payload []byte)
	Availability(name string, online bool)
}

type State int32

const (
	StateConnecting State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Options struct {
	// Sleep after a successful run.
	ExecutionDelay time.Duration
	// Sleep after a failed run.
	ExceptionDelay time.Duration
	Observer       Observer
}

// Loop connects a transport and keeps publishing what its action produces.
// Loops share nothing, each owns its action and transport.
type Loop struct {
	name      string
	logger    *slog.Logger
	action    Action
	transport Transport
	opts      Options
	state     atomic.Int32
	online    atomic.Bool
	after     func(time.Duration) <-chan time.Time
}

func NewLoop(name string, action Action, transport Transport, opts Options) *Loop {
	if opts.ExecutionDelay <= 0 {
		opts.ExecutionDelay = DefaultDelay
	}
	if opts.ExceptionDelay <= 0 {
		opts.ExceptionDelay = DefaultDelay
	}
	return &Loop{
		name:      name,
		logger:    slog.Default().With(slog.String("module", "publish"), slog.String("source", name)),
		action:    action,
		transport: transport,
		opts:      opts,
		after:     time.After,
	}
}

func (l *Loop) Name() string {
	return l.name
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) Online() bool {
	return l.online.Load()
}

// Run blocks until ctx is cancelled. The only error is a failed connect,
// which wraps ErrConnect.
func (l *Loop) Run(ctx context.Context) error {
	l.state.Store(int32(StateConnecting))
	l.logger.Debug("connecting publisher")
	if err := l.transport.Connect(); err != nil {
		l.state.Store(int32(StateStopped))
		l.logger.Error("publisher can not connect", slog.Any("error", err))
		return fmt.Errorf("%s: %w: %v", l.name, ErrConnect, err)
	}
	defer l.stop()

	l.announce(true)
	l.state.Store(int32(StateRunning))
	l.logger.Info("publisher running",
		slog.Duration("executionDelay", l.opts.ExecutionDelay),
		slog.Duration("exceptionDelay", l.opts.ExceptionDelay))

	for {
		if ctx.Err() != nil {
			return nil
		}
		delay := l.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-l.after(delay):
		}
	}
}

// tick runs the action once and returns how long to sleep.
func (l *Loop) tick(ctx context.Context) time.Duration {
	msg, err := l.execute(ctx)
	if err == nil && len(msg) == 0 {
		err = errors.New("no result")
	}
	if err != nil {
		if ctx.Err() != nil {
			return l.opts.ExceptionDelay
		}
		l.logger.Warn("publisher action failed, going offline",
			slog.Any("error", err),
			slog.Duration("retryIn", l.opts.ExceptionDelay))
		l.announce(false)
		return l.opts.ExceptionDelay
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		l.logger.Error("failed to encode message", slog.Any("error", err))
		l.announce(false)
		return l.opts.ExceptionDelay
	}
	if err := l.transport.Publish(payload); err != nil {
		l.logger.Error("failed to publish message", slog.Any("error", err))
		l.announce(false)
		return l.opts.ExceptionDelay
	}
	if l.opts.Observer != nil {
		l.opts.Observer.Published(l.name, payload)
	}
	l.announce(true)
	l.logger.Debug("published", slog.String("payload", string(payload)))
	return l.opts.ExecutionDelay
}

func (l *Loop) execute(ctx context.Context) (msg Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return l.action.Execute(ctx)
}

func (l *Loop) announce(online bool) {
	if err := l.transport.Announce(online); err != nil {
		l.logger.Warn("failed to announce availability", slog.Bool("online", online), slog.Any("error", err))
	}
	changed := l.online.Swap(online) != online
	if changed && l.opts.Observer != nil {
		l.opts.Observer.Availability(l.name, online)
	}
}

func (l *Loop) stop() {
	l.logger.Info("stopping publisher")
	l.announce(false)
	l.transport.Disconnect()
	l.state.Store(int32(StateStopped))
}
