package middleware

import tele "gopkg.in/telebot.v4"

const keyReplies = "replies"

// replies counts what a handler sent back for one update.
type replies struct {
	messages int
	keyboard bool
}

func (r *replies) add(n int, kb bool) {
	r.messages += n
	r.keyboard = r.keyboard || kb
}

func repliesOf(c tele.Context) *replies {
	r, _ := c.Get(keyReplies).(*replies)
	return r
}

// countingContext records every successful Send and Reply made through it.
type countingContext struct{ tele.Context }

func withKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			return v != nil
		case *tele.SendOptions:
			return v != nil && v.ReplyMarkup != nil
		}
	}
	return false
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	err := c.Context.Send(what, opts...)
	if err == nil {
		RecordMessages(c.Context, 1, withKeyboard(opts))
	}
	return err
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	err := c.Context.Reply(what, opts...)
	if err == nil {
		RecordMessages(c.Context, 1, withKeyboard(opts))
	}
	return err
}

// MessageMetricsMiddleware resets the reply counters of the update and
// counts replies sent through the context.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set(keyReplies, &replies{})
		return next(countingContext{Context: c})
	}
}

// RecordMessages adds n messages to the counters of c. Handlers that deliver
// through the bot rather than the context report their sends here.
func RecordMessages(c tele.Context, n int, kb bool) {
	if c == nil || n <= 0 {
		return
	}
	r := repliesOf(c)
	if r == nil {
		r = &replies{}
		c.Set(keyReplies, r)
	}
	r.add(n, kb)
}

// GetCounters returns the number of replies and whether any carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	if r := repliesOf(c); r != nil {
		return r.messages, r.keyboard
	}
	return 0, false
}
