package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/sheetbot/core/logger"
	tghelpers "github.com/m3rciful/sheetbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// DefaultApology is sent when a handler panics.
const DefaultApology = "Sorry, something went wrong. Please try again later."

// RecoverMiddleware catches panics with the default apology.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return Recover(DefaultApology)(next)
}

// Recover catches panics in handlers, logs them and tries to send apology.
// The panic is turned into an error so telebot's OnError sees it too.
func Recover(apology string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				ctx := tghelpers.BuildContext(c)
				logger.Error(ctx, logger.CompTelegram, "tg.panic",
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				if apology != "" && c.Chat() != nil {
					_ = c.Send(apology)
				}
				err = fmt.Errorf("telegram: handler panic: %v", r)
			}()
			return next(c)
		}
	}
}
