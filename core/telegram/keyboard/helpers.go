// Package keyboard builds telebot inline keyboards.
package keyboard

import (
	"fmt"

	tele "gopkg.in/telebot.v4"
)

// MaxCallbackData is the Bot API limit for callback_data, in bytes.
const MaxCallbackData = 64

// Button is one inline button. Unique is the callback key and Data the
// optional payload; telebot encodes both as \f<unique>|<data>.
type Button struct {
	Text   string
	Unique string
	Data   string
}

func (b Button) callbackLen() int {
	n := 1 + len(b.Unique)
	if b.Data != "" {
		n += 1 + len(b.Data)
	}
	return n
}

// Layout collects rows of buttons.
type Layout struct {
	rows [][]Button
}

// Row appends one row. Empty rows are dropped.
func (l *Layout) Row(btns ...Button) *Layout {
	if len(btns) > 0 {
		l.rows = append(l.rows, btns)
	}
	return l
}

// Grid appends btns split into rows of at most perRow buttons.
func (l *Layout) Grid(perRow int, btns ...Button) *Layout {
	perRow = max(perRow, 1)
	for i := 0; i < len(btns); i += perRow {
		l.Row(btns[i:min(i+perRow, len(btns))]...)
	}
	return l
}

// Markup renders the layout. A button whose callback data exceeds
// MaxCallbackData is an error, since Telegram rejects the whole message.
func (l *Layout) Markup() (*tele.ReplyMarkup, error) {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(l.rows))
	for _, row := range l.rows {
		out := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			if n := b.callbackLen(); n > MaxCallbackData {
				return nil, fmt.Errorf("keyboard: callback data for %q is %d bytes", b.Unique, n)
			}
			out = append(out, *markup.Data(b.Text, b.Unique, b.Data).Inline())
		}
		inline = append(inline, out)
	}
	markup.InlineKeyboard = inline
	return markup, nil
}
