package keyboard

import (
	"github.com/m3rciful/sheetbot/core/scene"

	tele "gopkg.in/telebot.v4"
)

// InlineBtn describes one inline button: a callback when Unique is set,
// otherwise a link to URL.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// InlineButtons builds an inline keyboard where each provided button is placed on its own row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	rows := make([][]InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []InlineBtn{b})
	}
	return InlineButtonsRows(rows...)
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
// Empty rows and buttons without a target are skipped.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tele.InlineButton, 0, len(row))
		for _, btn := range row {
			switch {
			case btn.Unique != "":
				r = append(r, *markup.Data(btn.Text, btn.Unique, btn.Data).Inline())
			case btn.URL != "":
				r = append(r, *markup.URL(btn.Text, btn.URL).Inline())
			}
		}
		if len(r) > 0 {
			inline = append(inline, r)
		}
	}
	markup.InlineKeyboard = inline
	return markup
}

// FromScene converts scene buttons into an inline keyboard. It returns nil
// when there is nothing to show.
func FromScene(rows [][]scene.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	converted := make([][]InlineBtn, 0, len(rows))
	for _, row := range rows {
		r := make([]InlineBtn, 0, len(row))
		for _, b := range row {
			r = append(r, InlineBtn{Text: b.Text, Unique: b.Action, URL: b.URL})
		}
		converted = append(converted, r)
	}
	markup := InlineButtonsRows(converted...)
	if len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}
