// Package router binds Telegram updates to the scene engine.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/metrics"
	"github.com/m3rciful/sheetbot/core/scene"
	tg "github.com/m3rciful/sheetbot/core/telegram"
	tghelpers "github.com/m3rciful/sheetbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Dispatcher receives routed events. *scene.Engine implements it.
type Dispatcher interface {
	Handle(ctx context.Context, user scene.User, r scene.Replier, ev scene.Event) error
}

// Fallback holds the replies used when the engine cannot serve an update.
type Fallback struct {
	UnknownText    scene.Message
	UnknownCommand scene.Message
	UnknownMedia   scene.Message
	UnknownAction  string
	Failure        scene.Message
}

// Options wires routes to the engine.
type Options struct {
	Registry      *tg.Registry
	Dispatcher    Dispatcher
	Sender        *tghelpers.Sender
	Metrics       metrics.Recorder
	HandleTimeout time.Duration
	Fallback      Fallback
}

func (o Options) validate() error {
	if o.Registry == nil || o.Dispatcher == nil {
		return errors.New("router: registry and dispatcher are required")
	}
	return nil
}

// dispatch hands ev to the engine and turns engine outcomes into replies.
// Unhandled events are routine and get the fallback reply; other errors get
// the failure reply and are returned to telebot's OnError.
func (o Options) dispatch(c tele.Context, handler string, ev scene.Event, extras ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, handler)

	user, ok := tghelpers.SceneUser(c)
	if !ok {
		logHandlerSummary(c, handler, start, "skip", "no_sender", nil, extras...)
		return nil
	}
	if o.HandleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.HandleTimeout)
		defer cancel()
	}

	replier := o.Sender.For(c)
	err := o.Dispatcher.Handle(ctx, user, replier, ev)
	metrics.OrNop(o.Metrics).RecordHandlerLatency(handler, time.Since(start))

	switch {
	case err == nil:
		logHandlerSummary(c, handler, start, "", "ok", nil, extras...)
		return nil
	case errors.Is(err, scene.ErrUnhandled):
		replyErr := o.replyFallback(ctx, replier, ev)
		logHandlerSummary(c, handler, start, "skip", "unhandled", replyErr, extras...)
		return nil
	}

	if o.Fallback.Failure.Text != "" {
		if replyErr := replier.Reply(context.WithoutCancel(ctx), o.Fallback.Failure); replyErr != nil {
			logger.Warn(ctx, logger.CompTelegram, "handler.apology_failed", logger.Err(replyErr))
		}
	}
	logHandlerSummary(c, handler, start, "", "fail", err, extras...)
	return fmt.Errorf("%s: %w", handler, err)
}

func (o Options) replyFallback(ctx context.Context, r scene.Replier, ev scene.Event) error {
	var msg scene.Message
	switch ev.Kind {
	case scene.EventText:
		msg = o.Fallback.UnknownText
	case scene.EventCommand:
		msg = o.Fallback.UnknownCommand
	}
	if msg.Text == "" {
		return nil
	}
	return r.Reply(ctx, msg)
}
