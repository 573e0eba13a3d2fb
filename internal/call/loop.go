package call

import (
	"context"
)

const loopBuffer = 64

// eventLoop serializes every callback of a session onto one goroutine, so
// session state needs no locking of its own.
type eventLoop struct {
	events   chan func()
	done     chan struct{}
	stopping bool
}

func newEventLoop() *eventLoop {
	l := &eventLoop{
		events: make(chan func(), loopBuffer),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *eventLoop) run() {
	defer close(l.done)
	for fn := range l.events {
		fn()
		if l.stopping {
			return
		}
	}
}

// post queues fn. It reports false once the loop has stopped.
func (l *eventLoop) post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (l *eventLoop) call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if !l.post(func() { res <- fn() }) {
		return ErrSessionClosed
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

// stop ends the loop once the running callback returns. Queued callbacks
// are dropped. It must be called from a callback.
func (l *eventLoop) stop() {
	l.stopping = true
}
