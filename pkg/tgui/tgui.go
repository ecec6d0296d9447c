package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
// It stores rows as tele.Row ([]tele.Btn) and applies them via ReplyMarkup.Inline().
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a new row (buttons) to the inline keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Button is an inline keyboard button.
type Button = tele.Btn

// Btn creates a callback button with raw callback_data (we do NOT encode it).
// Use Data to build "namespace:action:payload".
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// Grid lays buttons out in rows of cols buttons.
func Grid(cols int, buttons []tele.Btn) *Inline {
	if cols <= 0 {
		cols = 2
	}
	kb := NewInline()
	for start := 0; start < len(buttons); start += cols {
		end := start + cols
		if end > len(buttons) {
			end = len(buttons)
		}
		kb.Row(buttons[start:end]...)
	}
	return kb
}
