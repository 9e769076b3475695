package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/onboardbot/core/logger"
	"github.com/m3rciful/onboardbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// Enqueue hands run to the async dispatcher. Without a dispatcher, or when the
// queue refuses the job, run executes inline and its error is returned.
// The returned job id is empty for inline runs.
func Enqueue(ctx context.Context, action, endpoint string, run func() error) (string, error) {
	disp := globalDispatcher.Load()
	if disp == nil {
		return "", run()
	}
	id, err := disp.Enqueue(ctx, action, endpoint, run)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logFallback(ctx, action, endpoint, err)
		return "", run()
	}
	return "", err
}

// EnqueueOrdered is Enqueue for jobs that must reach chatID in the order they
// were queued. A full queue is reported instead of running inline, since an
// inline send would overtake the jobs already waiting for that chat.
func EnqueueOrdered(ctx context.Context, chatID int64, action, endpoint string, run func() error) (string, error) {
	disp := globalDispatcher.Load()
	if disp == nil {
		return "", run()
	}
	id, err := disp.EnqueueKeyed(ctx, chatID, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueClosed) {
		// Close drains every queue first, so nothing is left to overtake.
		logFallback(ctx, action, endpoint, err)
		return "", run()
	}
	return id, err
}

func logFallback(ctx context.Context, action, endpoint string, err error) {
	logger.Warn(ctx, "tg.sender", "queue.fallback",
		slog.String("action", action),
		slog.String("endpoint", endpoint),
		slog.String("err", err.Error()),
	)
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	_, err := Enqueue(BuildContext(c), "send.text", "sendMessage", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
	return err
}
