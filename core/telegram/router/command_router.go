package router

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/scene"
	tg "github.com/m3rciful/sheetbot/core/telegram"
	"github.com/m3rciful/sheetbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes prepares one route per registered command. Each route
// forwards a command event to the dispatcher.
func CommandRoutes(opts Options) ([]tg.Route, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	names := opts.Registry.Commands()
	routes := make([]tg.Route, 0, len(names))
	for _, name := range names {
		cmd := name
		handler := func(c tele.Context) error {
			payload := ""
			if msg := c.Message(); msg != nil {
				payload = strings.TrimSpace(msg.Payload)
			}
			return opts.dispatch(c, "command."+normalizeHandlerName(cmd), scene.CommandEvent(cmd, payload))
		}
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler:  middleware.LoggerMiddleware(handler),
		})
	}

	logger.Info(context.Background(), logger.CompWire, "tg.wire",
		slog.String("status", "ok"),
		slog.Int("commands", len(names)),
		slog.Int("callbacks", len(opts.Registry.Actions())),
	)
	return routes, nil
}
