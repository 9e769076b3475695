package helpers

import (
	"context"

	"github.com/m3rciful/onboardbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxKey = "update_ctx"

// UpdateMeta returns the logging metadata of the update behind c.
func UpdateMeta(c tele.Context) logger.UpdateMeta {
	m := logger.UpdateMeta{UpdateID: c.Update().ID}
	if chat := c.Chat(); chat != nil {
		m.ChatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		m.UserID = user.ID
	}
	return m
}

// BuildContext returns the context of the update behind c, creating and
// caching it on first use.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}
	ctx := logger.WithMeta(context.Background(), UpdateMeta(c))
	c.Set(ctxKey, ctx)
	return ctx
}

// WithHandler tags the cached update context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(BuildContext(c), handler)
	c.Set(ctxKey, ctx)
	return ctx
}
