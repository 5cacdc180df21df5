package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/sheetbot/core/scene"
	tg "github.com/m3rciful/sheetbot/core/telegram"
	"github.com/m3rciful/sheetbot/core/telegram/callbacks"
	"github.com/m3rciful/sheetbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute returns the catch-all callback route. Known actions are
// dispatched as action events regardless of the user's scene.
func CallbackRoute(opts Options) (tg.Route, error) {
	if err := opts.validate(); err != nil {
		return tg.Route{}, err
	}
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}

		key, _ := callbacks.ParseCallbackData(c.Callback())
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		if !opts.Registry.HasAction(key) {
			var resp *tele.CallbackResponse
			if opts.Fallback.UnknownAction != "" {
				resp = &tele.CallbackResponse{Text: opts.Fallback.UnknownAction}
			}
			err := respond(c, resp)
			extras = append(extras, slog.String("reason", "not_found"))
			logHandlerSummary(c, name, start, "skip", "not_found", err, extras...)
			return nil
		}

		_ = respond(c, nil)
		return opts.dispatch(c, name, scene.ActionEvent(key), extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.LoggerMiddleware(handler),
	}, nil
}

func respond(c tele.Context, resp *tele.CallbackResponse) error {
	if resp == nil {
		return c.Respond()
	}
	return c.Respond(resp)
}
