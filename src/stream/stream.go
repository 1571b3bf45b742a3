// Package stream consumes event-stream feeds and transparently resumes them
// from the last delivered event id after a transport failure.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"buildtime-agent/src/logger"
	"buildtime-agent/src/sse"
)

// ErrStalled is the transport error used when a connection delivers no event
// within the stall timeout.
var ErrStalled = errors.New("stream stalled")

// Opener opens a feed, resuming after lastEventID when it is non-empty.
type Opener interface {
	Open(ctx context.Context, path, lastEventID string) (io.ReadCloser, error)
}

// Handler processes one event. The event's data is only valid for the
// duration of the call.
type Handler func(sse.Event) error

// Observer receives connection lifecycle callbacks.
type Observer interface {
	Connected(resumed bool)
	Event()
	Reconnect(err error)
}

type nopObserver struct{}

func (nopObserver) Connected(bool)  {}
func (nopObserver) Event()          {}
func (nopObserver) Reconnect(error) {}

// Stream is a single resumable feed. A Stream is not safe for concurrent
// use; each feed gets its own.
type Stream struct {
	opener       Opener
	path         string
	name         string
	cursor       string
	policy       RetryPolicy
	stallTimeout time.Duration
	logger       logger.Logger
	observer     Observer
}

// Option configures a Stream.
type Option func(*Stream)

// WithCursor starts the stream after the given event id.
func WithCursor(cursor string) Option {
	return func(s *Stream) { s.cursor = cursor }
}

// WithRetryPolicy replaces the default RetryForever policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Stream) { s.policy = p }
}

// WithStallTimeout tears down a connection that delivers nothing for d.
// Zero disables the watchdog.
func WithStallTimeout(d time.Duration) Option {
	return func(s *Stream) { s.stallTimeout = d }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// WithName sets the component name used in log lines.
func WithName(name string) Option {
	return func(s *Stream) { s.name = name }
}

func WithObserver(o Observer) Option {
	return func(s *Stream) { s.observer = o }
}

// New creates a Stream reading path through opener.
func New(opener Opener, path string, opts ...Option) *Stream {
	s := &Stream{
		opener:   opener,
		path:     path,
		name:     "Stream",
		policy:   RetryForever(),
		logger:   logger.NewSilentLogger(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cursor returns the id of the last delivered event.
func (s *Stream) Cursor() string {
	return s.cursor
}

type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }

// Consume delivers every event of the feed to handler until the source ends
// the stream, returning nil. Transport failures are retried according to the
// retry policy. Handler errors stop consumption and are returned unchanged.
func (s *Stream) Consume(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.cursor == "" {
			s.logger.Info("[%s] Streaming from the beginning", s.name)
		} else {
			s.logger.Info("[%s] Resuming from event %s", s.name, s.cursor)
		}

		delivered, err := s.connect(ctx, handler, attempt > 0)
		if err == nil {
			s.logger.Debug("[%s] Stream completed", s.name)
			return nil
		}

		var herr *handlerError
		if errors.As(err, &herr) {
			return herr.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if delivered {
			attempt = 0
		}
		attempt++

		retry, delay := s.policy.ShouldRetry(attempt, err)
		if !retry {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		s.logger.Info("[%s] Stream error, resuming from %s: %v", s.name, cursorLabel(s.cursor), err)
		s.observer.Reconnect(err)

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func cursorLabel(cursor string) string {
	if cursor == "" {
		return "the beginning"
	}
	return "event " + cursor
}

// connect runs one connection. delivered reports whether at least one event
// reached the handler.
func (s *Stream) connect(ctx context.Context, handler Handler, resumed bool) (delivered bool, err error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	body, err := s.opener.Open(connCtx, s.path, s.cursor)
	if err != nil {
		return false, fmt.Errorf("failed to open feed: %w", err)
	}

	var closeOnce sync.Once
	closeBody := func() { closeOnce.Do(func() { body.Close() }) }
	defer closeBody()

	s.observer.Connected(resumed)

	// Unblock a pending read when the connection is cancelled.
	stop := context.AfterFunc(connCtx, closeBody)
	defer stop()

	var stalled atomic.Bool
	var watchdog *time.Timer
	if s.stallTimeout > 0 {
		watchdog = time.AfterFunc(s.stallTimeout, func() {
			stalled.Store(true)
			cancel()
		})
		defer watchdog.Stop()
	}

	dec := sse.NewDecoder(body)
	for {
		ev, err := dec.Decode()
		if err != nil {
			switch {
			case stalled.Load():
				return delivered, fmt.Errorf("%w: no event for %s", ErrStalled, s.stallTimeout)
			case ctx.Err() != nil:
				return delivered, ctx.Err()
			case errors.Is(err, io.EOF):
				return delivered, nil
			default:
				return delivered, fmt.Errorf("failed to read feed: %w", err)
			}
		}

		// Handler time does not count as feed silence.
		if watchdog != nil {
			watchdog.Stop()
		}

		delivered = true
		if ev.ID != "" {
			s.cursor = ev.ID
		}
		s.observer.Event()

		if err := dispatch(handler, ev); err != nil {
			return delivered, &handlerError{err: err}
		}

		if watchdog != nil {
			watchdog.Reset(s.stallTimeout)
		}
	}
}

func dispatch(handler Handler, ev *sse.Event) error {
	defer ev.Release()
	return handler(*ev)
}
