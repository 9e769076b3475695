package logger

import (
	"errors"
	"io"
	"sync"
)

// asyncWriter copies every line to all sinks from a single goroutine so that
// handlers never wait on slow files. A full queue makes Write block.
type asyncWriter struct {
	lines chan []byte
	syncs chan chan struct{}
	done  chan struct{}
	sinks []io.Writer

	state  sync.RWMutex
	closed bool

	mu  sync.Mutex
	err error
}

func newAsyncWriter(sinks []io.Writer, queue int) *asyncWriter {
	if queue <= 0 {
		queue = 256
	}
	w := &asyncWriter{
		lines: make(chan []byte, queue),
		syncs: make(chan chan struct{}),
		done:  make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			w.sinks = append(w.sinks, s)
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return
			}
			w.emit(line)
		case ack := <-w.syncs:
			// Drain what was queued before the sync request.
			for n := len(w.lines); n > 0; n-- {
				w.emit(<-w.lines)
			}
			close(ack)
		}
	}
}

func (w *asyncWriter) emit(line []byte) {
	for _, s := range w.sinks {
		if _, err := s.Write(line); err != nil {
			w.mu.Lock()
			if w.err == nil {
				w.err = err
			}
			w.mu.Unlock()
		}
	}
}

// Write queues a copy of p.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.state.RLock()
	defer w.state.RUnlock()
	if w.closed {
		return errClosedWriter
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush returns once every line queued before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan struct{})
	select {
	case w.syncs <- ack:
		<-ack
	case <-w.done:
	}
	return w.Err()
}

// Close drains the queue and stops the writer goroutine.
func (w *asyncWriter) Close() error {
	w.state.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.state.Unlock()
	<-w.done
	return w.Err()
}

// Err reports the first sink error.
func (w *asyncWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

var errClosedWriter = errors.New("logger: writer closed")
