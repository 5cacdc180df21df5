// Package bot assembles the spreadsheet registration bot from its parts.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/m3rciful/sheetbot/app/registration"
	"github.com/m3rciful/sheetbot/app/scenes"
	"github.com/m3rciful/sheetbot/core/buildinfo"
	coreconfig "github.com/m3rciful/sheetbot/core/config"
	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/metrics"
	"github.com/m3rciful/sheetbot/core/scene"
	"github.com/m3rciful/sheetbot/core/session"
	"github.com/m3rciful/sheetbot/core/sheets"
	"github.com/m3rciful/sheetbot/core/table"
	tg "github.com/m3rciful/sheetbot/core/telegram"
	"github.com/m3rciful/sheetbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/sheetbot/core/telegram/helpers"
	"github.com/m3rciful/sheetbot/core/telegram/router"
	"github.com/m3rciful/sheetbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Overrides replaces external collaborators. Zero fields use the real ones.
type Overrides struct {
	Table    table.Store
	Prober   registration.Prober
	Sessions session.Store
	// Registry receives the Prometheus collectors.
	Registry *prometheus.Registry
}

// App holds the wired bot.
type App struct {
	cfg *coreconfig.Config

	sessions   *session.ResilientStore
	backend    sessionBackend
	engine     *scene.Engine
	registry   *tg.Registry
	sender     *tghelpers.Sender
	dispatcher *sender.Dispatcher
	metrics    *metrics.Collector
	prom       *prometheus.Registry
}

// New wires the bot. db is only used by the postgres session backend.
func New(ctx context.Context, cfg *coreconfig.Config, db *sqlx.DB, ov Overrides) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bot: nil config")
	}
	a := &App{cfg: cfg, prom: ov.Registry}
	if a.prom == nil {
		a.prom = prometheus.NewRegistry()
		a.prom.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	a.metrics = metrics.NewCollector(a.prom)

	if ov.Sessions != nil {
		a.backend = sessionBackend{store: ov.Sessions}
	} else {
		backend, err := openSessionBackend(cfg.Session, db)
		if err != nil {
			return nil, fmt.Errorf("bot: %w", err)
		}
		a.backend = backend
	}
	a.sessions = session.Resilient(a.backend.store, cfg.Session.Timeout, func(op string, _ error) {
		a.metrics.RecordSessionDegraded(op)
	})

	store, prober := ov.Table, ov.Prober
	if store == nil || prober == nil {
		client, err := sheets.New(ctx, sheets.Config{
			CredentialsJSON: cfg.Sheets.CredentialsJSON,
			SpreadsheetID:   cfg.Sheets.MasterSpreadsheetID,
			Timeout:         cfg.Sheets.Timeout,
		})
		if err != nil {
			a.closeBackend()
			return nil, fmt.Errorf("bot: %w", err)
		}
		if store == nil {
			store = client
		}
		if prober == nil {
			prober = client
		}
	}

	regs := registration.NewService(store, prober, registration.Config{
		Table:         cfg.Sheets.MasterSheet,
		VerifyTimeout: cfg.Sheets.VerifyTimeout,
		Metrics:       a.metrics,
	})
	flow, err := scenes.New(scenes.Config{
		Registrations:       regs,
		ServiceAccountEmail: cfg.Sheets.ClientEmail,
	})
	if err != nil {
		a.closeBackend()
		return nil, fmt.Errorf("bot: %w", err)
	}
	a.engine, err = scene.New(flow.EngineConfig(a.sessions, session.NewLocker()))
	if err != nil {
		a.closeBackend()
		return nil, fmt.Errorf("bot: %w", err)
	}

	a.registry, err = newRegistry()
	if err != nil {
		a.closeBackend()
		return nil, fmt.Errorf("bot: %w", err)
	}
	if err := a.registry.Validate(a.engine.Commands(), a.engine.Actions()); err != nil {
		a.closeBackend()
		return nil, fmt.Errorf("bot: registry: %w", err)
	}

	if cfg.Telegram.AsyncSend {
		// one worker keeps replies to a chat in order
		a.dispatcher = sender.NewDispatcher(sender.Options{Workers: 1, MaxRetries: 2})
	}
	a.sender = &tghelpers.Sender{Dispatcher: a.dispatcher, Metrics: a.metrics}

	logger.Info(ctx, logger.CompApp, "wire",
		slog.String("status", "ok"),
		slog.String("session_backend", cfg.Session.Backend),
		slog.String("master_sheet", cfg.Sheets.MasterSheet),
		slog.Bool("async_send", cfg.Telegram.AsyncSend),
	)
	return a, nil
}

func newRegistry() (*tg.Registry, error) {
	reg := tg.NewRegistry()
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/" + scenes.CmdStart, commands.Command{Description: descStart}},
		{"/" + scenes.CmdHelp, commands.Command{Description: descHelp}},
		{"/" + scenes.CmdStatus, commands.Command{Description: descStatus}},
	}
	var errs []error
	for _, c := range cmds {
		errs = append(errs, reg.RegisterCommand(c.name, c.cmd))
	}
	errs = append(errs,
		reg.RegisterAction(scenes.ActionVerifyAccess),
		reg.RegisterAction(scenes.ActionChangeSpreadsheet),
	)
	return reg, errors.Join(errs...)
}

// Engine exposes the scene engine.
func (a *App) Engine() *scene.Engine { return a.engine }

// Status reports liveness and session backend health.
func (a *App) Status(ctx context.Context) tg.Status {
	return tg.Status{
		Status:         "ok",
		Version:        buildinfo.Version,
		Environment:    a.cfg.Env,
		SessionBackend: a.cfg.Session.Backend,
		SessionHealthy: a.sessions.Ping(ctx) == nil,
	}
}

// TelegramRunOptions builds routes and middlewares for the runtime.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	opts := router.Options{
		Registry:      a.registry,
		Dispatcher:    a.engine,
		Sender:        a.sender,
		Metrics:       a.metrics,
		HandleTimeout: a.cfg.Telegram.HandleTimeout,
		Fallback: router.Fallback{
			UnknownText:    scene.Message{Text: msgUnknownText},
			UnknownCommand: scene.Message{Text: msgUnknownCommand},
			UnknownMedia:   scene.Message{Text: msgUnknownMedia},
			UnknownAction:  msgUnknownAction,
			Failure:        scene.Message{Text: msgFailure},
		},
	}

	routes, err := router.CommandRoutes(opts)
	if err != nil {
		return tg.RunOptions{}, err
	}
	cb, err := router.CallbackRoute(opts)
	if err != nil {
		return tg.RunOptions{}, err
	}
	text, err := router.TextRoutes(opts)
	if err != nil {
		return tg.RunOptions{}, err
	}
	routes = append(append(routes, cb), text...)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: tg.DefaultMiddlewares(a.cfg, a.metrics, a.onRateLimited),
		Routes:      routes,
		Status:      a.Status,
		Metrics:     metrics.Handler(a.prom),
		OnStart: func(ctx context.Context, _ tg.Runtime) error {
			go runJanitor(ctx, janitorInterval, a.backend.purge)
			return nil
		},
		OnStop: func(context.Context, tg.Runtime) error {
			return a.closeBackend()
		},
	}, nil
}

func (a *App) onRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: msgSlowDown})
	}
	return a.sender.SendText(c, msgSlowDown)
}

func (a *App) closeBackend() error {
	if a.backend.close == nil {
		return nil
	}
	err := a.backend.close()
	a.backend.close = nil
	return err
}
