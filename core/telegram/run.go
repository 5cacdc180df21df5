package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/sheetbot/core/config"
	"github.com/m3rciful/sheetbot/core/logger"
	tghelpers "github.com/m3rciful/sheetbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/sheetbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// Dispatcher, when set, is closed after the bot stops.
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// Status and Metrics feed the webhook server's GET endpoints.
	Status  func(ctx context.Context) Status
	Metrics http.Handler

	// APIURL overrides the Bot API base URL; Offline skips getMe.
	APIURL  string
	Offline bool

	DisableWebhookCleanup      bool
	DisableWebhookRegistration bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// NewBot builds the telebot instance for cfg. Webhook mode processes
// updates synchronously so the HTTP handler can wait for them.
func NewBot(opts RunOptions) (*tele.Bot, error) {
	cfg := opts.Config
	webhook := cfg.Telegram.RunMode != coreconfig.RunModeLongpoll
	settings := tele.Settings{
		Token:       cfg.Telegram.Token,
		URL:         opts.APIURL,
		Client:      BuildHTTPClient(),
		Synchronous: webhook,
		Offline:     opts.Offline,
		OnError:     onError,
	}
	if !webhook {
		settings.Poller = BuildPoller(cfg.Telegram.LongPollTimeoutSeconds)
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}
	return bot, nil
}

func onError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		if stored, ok := tghelpers.ContextFrom(c); ok {
			ctx = stored
		}
	}
	logger.Error(ctx, logger.CompTelegram, "tg.error",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 512)),
	)
}

// RunTelegram composes and runs a Telegram bot until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	buildStart := time.Now()
	bot, err := NewBot(opts)
	if err != nil {
		return err
	}
	rt := Runtime{Bot: bot, Dispatcher: opts.Dispatcher, Registry: opts.Registry}
	defer func() {
		if rt.Dispatcher != nil {
			rt.Dispatcher.Close()
		}
	}()

	if !opts.Offline {
		InitBotCommands(bot, opts.Registry)
	}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	var runErr error
	if cfg.Telegram.RunMode == coreconfig.RunModeLongpoll {
		logger.Info(ctx, logger.CompTelegram, "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Int("timeout_seconds", cfg.Telegram.LongPollTimeoutSeconds),
			slog.Duration("duration", time.Since(buildStart)),
		)
		if !opts.DisableWebhookCleanup && !opts.Offline {
			if err := bot.RemoveWebhook(); err != nil {
				logger.Warn(ctx, logger.CompTelegram, "delete_webhook", slog.String("status", "fail"), logger.Err(err))
			}
		}
		runErr = runLongPoll(ctx, bot)
	} else {
		runErr = runWebhook(ctx, bot, opts, buildStart)
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Join(runErr, stopErr)
	}
	return stopErr
}

func runLongPoll(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

func runWebhook(ctx context.Context, bot *tele.Bot, opts RunOptions, buildStart time.Time) error {
	cfg := opts.Config
	addr := net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port))
	logger.Info(ctx, logger.CompTelegram, "mode",
		slog.String("mode", coreconfig.RunModeWebhook),
		slog.String("listen", addr),
		slog.String("path", cfg.Webhook.Path),
		slog.Duration("duration", time.Since(buildStart)),
	)

	if cfg.Webhook.URL != "" && !opts.DisableWebhookRegistration && !opts.Offline {
		hook := WebhookRegistration(cfg.Webhook.URL, cfg.Webhook.Path, cfg.Webhook.SecretToken)
		if err := bot.SetWebhook(hook); err != nil {
			return fmt.Errorf("telegram: set webhook: %w", err)
		}
		logger.Info(ctx, logger.CompTelegram, "set_webhook", slog.String("public_url", hook.Endpoint.PublicURL))
	}

	handler := NewWebhookHandler(bot, WebhookHandlerOptions{
		Path:        cfg.Webhook.Path,
		SecretToken: cfg.Webhook.SecretToken,
		AckTimeout:  cfg.Webhook.AckTimeout,
		Status:      opts.Status,
		Metrics:     opts.Metrics,
	})
	return ServeWebhook(ctx, addr, handler)
}
