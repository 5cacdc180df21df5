package router

import (
	"strings"
	"time"

	"github.com/m3rciful/sheetbot/core/scene"
	tg "github.com/m3rciful/sheetbot/core/telegram"
	tghelpers "github.com/m3rciful/sheetbot/core/telegram/helpers"
	"github.com/m3rciful/sheetbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextRoutes builds the text and media routes. Text that names a command
// alias becomes a command event; any other text goes to the active scene.
func TextRoutes(opts Options) ([]tg.Route, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	textHandler := func(c tele.Context) error {
		text := strings.TrimSpace(c.Text())
		if strings.HasPrefix(text, "/") {
			head, payload, _ := strings.Cut(text, " ")
			if key, _, ok := opts.Registry.LookupCommand(head); ok {
				return opts.dispatch(c, "command."+normalizeHandlerName(key), scene.CommandEvent(key, strings.TrimSpace(payload)))
			}
			return opts.dispatch(c, "unknown_command", scene.CommandEvent(head, payload))
		}
		return opts.dispatch(c, "text", scene.TextEvent(text))
	}

	mediaHandler := func(c tele.Context) error {
		start := time.Now()
		var err error
		if opts.Fallback.UnknownMedia.Text != "" {
			err = opts.Sender.Send(tghelpers.BuildContext(c), c, opts.Fallback.UnknownMedia)
		}
		logHandlerSummary(c, "unexpected_media", start, "skip", "ignored", err)
		return nil
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: middleware.LoggerMiddleware(textHandler)},
		{Endpoint: tele.OnMedia, Handler: middleware.LoggerMiddleware(mediaHandler)},
	}, nil
}
