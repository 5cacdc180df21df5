package helpers

import (
	"context"

	"github.com/m3rciful/sheetbot/core/metrics"
	"github.com/m3rciful/sheetbot/core/scene"
	"github.com/m3rciful/sheetbot/core/telegram/keyboard"
	"github.com/m3rciful/sheetbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Sender delivers replies for one bot. A nil Dispatcher sends inline.
type Sender struct {
	Dispatcher *sender.Dispatcher
	Metrics    metrics.Recorder
}

// For returns a scene.Replier bound to the chat of c.
func (s *Sender) For(c tele.Context) scene.Replier {
	return scene.ReplierFunc(func(ctx context.Context, msg scene.Message) error {
		return s.Send(ctx, c, msg)
	})
}

// Send converts msg into a Telegram message and sends it to the recipient of c.
func (s *Sender) Send(ctx context.Context, c tele.Context, msg scene.Message) error {
	opts := SendOptions(msg)
	var disp *sender.Dispatcher
	if s != nil {
		disp = s.Dispatcher
	}
	err := disp.Do(ctx, "send.text", func() error {
		return c.Send(msg.Text, opts)
	})
	if err == nil && s != nil {
		metrics.OrNop(s.Metrics).RecordMessagesSent(1)
	}
	return err
}

// SendOptions maps a scene message onto Telegram send options.
func SendOptions(msg scene.Message) *tele.SendOptions {
	opts := &tele.SendOptions{}
	if msg.Markdown {
		opts.ParseMode = tele.ModeMarkdown
	}
	if markup := keyboard.FromScene(msg.Buttons); markup != nil {
		opts.ReplyMarkup = markup
	}
	return opts
}

// SendText sends raw text (no parse mode) to the current recipient.
func (s *Sender) SendText(c tele.Context, text string) error {
	return s.Send(BuildContext(c), c, scene.Message{Text: text})
}
