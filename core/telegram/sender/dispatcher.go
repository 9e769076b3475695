// Package sender runs outbound Telegram calls on a bounded worker pool so
// that update handlers never block on the network.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/onboardbot/core/logger"
	"github.com/m3rciful/onboardbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize  int
	Workers    int
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number between retries.
	// A flood error waits for the delay Telegram asked for instead.
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	id       string
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

func (j job) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := []slog.Attr{slog.String("job_id", j.id), slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return append(attrs, extra...)
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Sent   uint64
	Failed uint64
	Queued int
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
// Each worker owns a queue; keyed jobs always land on the same worker, so
// jobs sharing a key run one at a time in enqueue order.
type Dispatcher struct {
	opts   Options
	queues []chan job
	next   atomic.Uint64

	// mu guards closed so Enqueue never sends on a closed channel.
	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	failed atomic.Uint64
	sent   atomic.Uint64
}

// NewDispatcher starts the workers. Zero options take defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, queues: make([]chan job, opts.Workers)}
	size := max((opts.QueueSize+opts.Workers-1)/opts.Workers, 1)
	d.wg.Add(opts.Workers)
	for i := range d.queues {
		q := make(chan job, size)
		d.queues[i] = q
		go func() {
			defer d.wg.Done()
			for j := range q {
				d.process(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run on the next worker and returns the job id carried by
// its log lines. run may be called more than once when retries are enabled.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) (string, error) {
	return d.enqueue(ctx, d.next.Add(1), action, endpoint, run)
}

// EnqueueKeyed schedules run on the worker owning key, typically a chat id.
// Retries of a keyed job hold back the jobs queued after it.
func (d *Dispatcher) EnqueueKeyed(ctx context.Context, key int64, action, endpoint string, run func() error) (string, error) {
	return d.enqueue(ctx, uint64(key), action, endpoint, run)
}

func (d *Dispatcher) enqueue(ctx context.Context, shard uint64, action, endpoint string, run func() error) (string, error) {
	if run == nil {
		return "", errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrQueueClosed
	}
	j := job{id: uuid.NewString(), ctx: ctx, action: action, endpoint: endpoint, run: run}
	select {
	case d.queues[shard%uint64(len(d.queues))] <- j:
		return j.id, nil
	default:
		return "", ErrQueueFull
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	queued := 0
	for _, q := range d.queues {
		queued += len(q)
	}
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Queued: queued}
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 { return d.failed.Load() }

// SentCount returns the number of jobs that eventually succeeded.
func (d *Dispatcher) SentCount() uint64 { return d.sent.Load() }

// Close stops accepting jobs and waits for workers to drain their queues.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()

	s := d.Stats()
	logger.Info(logger.Background(), "tg.sender", "sender.stopped",
		slog.Uint64("sent", s.Sent),
		slog.Uint64("failed", s.Failed),
	)
}

func (d *Dispatcher) process(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(); err == nil {
			d.sent.Add(1)
			logger.Debug(j.ctx, "tg.sender", "send.success", j.attrs(
				slog.String("status", "ok"),
				slog.Int("attempts", attempt),
				slog.Duration("elapsed", time.Since(start)),
			)...)
			return
		}

		kind := netutil.Classify(err)
		if !kind.Retryable() || attempt == attempts {
			break
		}
		delay := d.delay(err, attempt)
		logger.Debug(j.ctx, "tg.sender", "send.retry", j.attrs(
			slog.String("status", "retry"),
			slog.Int("attempts", attempt),
			slog.String("cause", string(kind)),
			slog.Duration("backoff", delay),
		)...)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			err = errors.Join(err, ctx.Err())
			attempts = attempt
		case <-timer.C:
		}
	}

	d.failed.Add(1)
	logger.Error(j.ctx, "tg.sender", "send.fail", j.attrs(
		slog.String("status", "fail"),
		slog.String("err", netutil.Redact(err)),
		slog.String("cause", string(netutil.Classify(err))),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", time.Since(start)),
	)...)
}

func (d *Dispatcher) delay(err error, attempt int) time.Duration {
	if wait := netutil.RetryAfter(err); wait > 0 {
		return wait
	}
	return d.opts.RetryBackoff * time.Duration(attempt)
}
