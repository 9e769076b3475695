// Package tgbot connects the onboarding flow to Telegram: updates become
// director inbounds and actions become telebot sends.
package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/m3rciful/onboardbot/core/telegram/helpers"
	"github.com/m3rciful/onboardbot/core/telegram/keyboard"
	"github.com/m3rciful/onboardbot/onboarding"
	"github.com/m3rciful/onboardbot/onboarding/catalog"
	"github.com/m3rciful/onboardbot/onboarding/director"

	tele "gopkg.in/telebot.v4"
)

// Sender is the part of *tele.Bot the outbox uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// ErrNotBound is returned by Dispatch before Bind was called.
var ErrNotBound = errors.New("tgbot: outbox is not bound to a bot")

// Outbox renders actions through the catalog and queues them on the shared
// sender dispatcher. It is bound to the bot once the runtime has built it.
type Outbox struct {
	catalog *catalog.Catalog

	mu  sync.RWMutex
	bot Sender
}

// NewOutbox creates an unbound outbox.
func NewOutbox(cat *catalog.Catalog) *Outbox {
	return &Outbox{catalog: cat}
}

// Bind sets the bot used for delivery.
func (o *Outbox) Bind(bot Sender) {
	o.mu.Lock()
	o.bot = bot
	o.mu.Unlock()
}

func (o *Outbox) sender() Sender {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.bot
}

// Dispatch queues the action. A nil error means the job was accepted; send
// failures after that are retried and logged by the dispatcher. Actions for
// the same chat are delivered in the order they were dispatched.
func (o *Outbox) Dispatch(ctx context.Context, a onboarding.Action) error {
	bot := o.sender()
	if bot == nil {
		return ErrNotBound
	}
	if _, _, err := o.render(a); err != nil {
		return err
	}
	to := tele.ChatID(a.To)
	_, err := helpers.EnqueueOrdered(ctx, a.To, a.Kind.String(), endpoint(a.Kind), func() error {
		// Telebot rewrites button data in place, so every attempt gets a fresh markup.
		what, opts, err := o.render(a)
		if err != nil {
			return err
		}
		_, err = bot.Send(to, what, opts...)
		return err
	})
	return err
}

func (o *Outbox) render(a onboarding.Action) (interface{}, []interface{}, error) {
	switch a.Kind {
	case onboarding.ActionSendText:
		return o.catalog.Text(a.Message, a.Args), []interface{}{tele.NoPreview}, nil
	case onboarding.ActionSendChoicePrompt:
		markup, err := o.Markup(a.Options)
		if err != nil {
			return nil, nil, err
		}
		return o.catalog.Text(a.Message, a.Args), []interface{}{markup, tele.NoPreview}, nil
	case onboarding.ActionSendImage:
		ref, ok := o.catalog.Image(a.Image)
		if !ok {
			return nil, nil, fmt.Errorf("tgbot: image %q is not configured", a.Image)
		}
		return &tele.Photo{File: fileRef(ref)}, nil, nil
	}
	return nil, nil, fmt.Errorf("tgbot: unsupported action kind %d", a.Kind)
}

// Markup builds the inline keyboard for a choice prompt. Review buttons share
// one row, flow choices get a row each.
func (o *Outbox) Markup(opts []onboarding.Option) (*tele.ReplyMarkup, error) {
	btns := make([]keyboard.Button, 0, len(opts))
	perRow := 1
	for _, opt := range opts {
		btns = append(btns, keyboard.Button{
			Text:   o.catalog.Text(opt.Label, nil),
			Unique: opt.Key,
			Data:   opt.Payload,
		})
		if director.IsReviewKey(opt.Key) {
			perRow = 2
		}
	}
	return new(keyboard.Layout).Grid(perRow, btns...).Markup()
}

func fileRef(ref string) tele.File {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tele.FromURL(ref)
	}
	return tele.FromDisk(ref)
}

func endpoint(k onboarding.ActionKind) string {
	if k == onboarding.ActionSendImage {
		return "sendPhoto"
	}
	return "sendMessage"
}
