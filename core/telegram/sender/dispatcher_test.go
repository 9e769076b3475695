package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func fastOptions() Options {
	return Options{Workers: 1, QueueSize: 4, MaxRetries: 2, RetryBackoff: time.Millisecond, MaxDuration: time.Second}
}

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(fastOptions())
	var runs atomic.Int32
	id, err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("job id is empty")
	}
	d.Close()
	if runs.Load() != 1 || d.SentCount() != 1 || d.ErrorCount() != 0 {
		t.Fatalf("runs=%d sent=%d errs=%d", runs.Load(), d.SentCount(), d.ErrorCount())
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(fastOptions())
	var runs atomic.Int32
	_, err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if runs.Add(1) == 1 {
			return timeoutErr{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Close()
	if runs.Load() != 2 || d.SentCount() != 1 {
		t.Fatalf("runs=%d sent=%d", runs.Load(), d.SentCount())
	}
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	d := NewDispatcher(fastOptions())
	var runs atomic.Int32
	_, _ = d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		runs.Add(1)
		return errors.New("telegram: chat not found (400)")
	})
	d.Close()
	if runs.Load() != 1 || d.ErrorCount() != 1 {
		t.Fatalf("runs=%d errs=%d", runs.Load(), d.ErrorCount())
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	if _, err := d.Enqueue(context.Background(), "a", "", func() error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	<-started
	if _, err := d.Enqueue(context.Background(), "b", "", func() error { return nil }); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}
	if _, err := d.Enqueue(context.Background(), "c", "", func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third enqueue err = %v, want ErrQueueFull", err)
	}
	close(release)
	d.Close()

	if _, err := d.Enqueue(context.Background(), "d", "", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after close err = %v, want ErrQueueClosed", err)
	}
}

func TestDispatcherJobIDsAreUnique(t *testing.T) {
	d := NewDispatcher(fastOptions())
	defer d.Close()
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		id, err := d.Enqueue(context.Background(), "x", "", func() error { return nil })
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate job id %s", id)
		}
		seen[id] = true
	}
}

func TestDispatcherRetriesTooManyRequests(t *testing.T) {
	d := NewDispatcher(fastOptions())
	var runs atomic.Int32
	_, _ = d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if runs.Add(1) == 1 {
			return errors.New("telegram: retry later (429)")
		}
		return nil
	})
	d.Close()
	if runs.Load() != 2 || d.Stats().Sent != 1 || d.Stats().Queued != 0 {
		t.Fatalf("runs=%d stats=%+v", runs.Load(), d.Stats())
	}
}

func TestDispatcherKeyedJobsRunInOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4, QueueSize: 64})
	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 8; i++ {
		_, err := d.EnqueueKeyed(context.Background(), -100123, "send.text", "sendMessage", func() error {
			if i == 0 {
				time.Sleep(30 * time.Millisecond)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	d.Close()
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v", order)
		}
	}
	if len(order) != 8 {
		t.Fatalf("ran %d jobs", len(order))
	}
}

func TestDispatcherRetryHoldsBackSameKey(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2, MaxRetries: 1, RetryBackoff: 20 * time.Millisecond, MaxDuration: time.Second})
	var (
		mu    sync.Mutex
		order []string
		runs  atomic.Int32
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	_, _ = d.EnqueueKeyed(context.Background(), 7, "a", "", func() error {
		if runs.Add(1) == 1 {
			return timeoutErr{}
		}
		record("a")
		return nil
	})
	_, _ = d.EnqueueKeyed(context.Background(), 7, "b", "", func() error {
		record("b")
		return nil
	})
	d.Close()
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v", order)
	}
}
