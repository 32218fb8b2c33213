package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/example/boskobot/internal/dialog"
)

// toTeleMarkup converts the dialogue's transport-neutral markup into a
// telebot reply markup. Plain messages carry no markup at all.
func toTeleMarkup(m dialog.Markup) *tele.ReplyMarkup {
	switch m.Kind {
	case dialog.MarkupRemove:
		return &tele.ReplyMarkup{RemoveKeyboard: true}
	case dialog.MarkupChoice:
		markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
		var keyboard []tele.Row
		for _, row := range m.Rows {
			var buttons []tele.Btn
			for _, label := range row {
				buttons = append(buttons, markup.Text(label))
			}
			keyboard = append(keyboard, markup.Row(buttons...))
		}
		markup.Reply(keyboard...)
		return markup
	default:
		return nil
	}
}
