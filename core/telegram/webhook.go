package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/m3rciful/sheetbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	secretHeader    = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBytes  = 1 << 20
	defaultAckAfter = 8 * time.Second
)

// UpdateProcessor runs one update to completion. *tele.Bot in synchronous
// mode implements it.
type UpdateProcessor interface {
	ProcessUpdate(u tele.Update)
}

// Status is the body of the status endpoints.
type Status struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Environment    string `json:"environment"`
	SessionBackend string `json:"session_backend"`
	SessionHealthy bool   `json:"session_healthy"`
}

// WebhookHandlerOptions configures NewWebhookHandler.
type WebhookHandlerOptions struct {
	Path        string
	SecretToken string
	AckTimeout  time.Duration
	// Status fills the status body; nil reports a bare "ok".
	Status  func(ctx context.Context) Status
	Metrics http.Handler
}

// WebhookHandler accepts Telegram updates over HTTP and serves status.
type WebhookHandler struct {
	proc     UpdateProcessor
	opts     WebhookHandlerOptions
	router   chi.Router
	inflight sync.WaitGroup
}

// NewWebhookHandler routes POST {path} to proc, and GET {path} plus
// /healthz to the status body. /metrics is mounted when opts.Metrics is set.
func NewWebhookHandler(proc UpdateProcessor, opts WebhookHandlerOptions) *WebhookHandler {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if !strings.HasPrefix(opts.Path, "/") {
		opts.Path = "/" + opts.Path
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaultAckAfter
	}

	h := &WebhookHandler{proc: proc, opts: opts}
	r := chi.NewRouter()
	r.Post(opts.Path, h.handleUpdate)
	r.Get(opts.Path, h.handleStatus)
	if opts.Path != "/healthz" {
		r.Get("/healthz", h.handleStatus)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Wait blocks until updates still running after their ack have finished.
func (h *WebhookHandler) Wait() { h.inflight.Wait() }

func (h *WebhookHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithLogger(r.Context(), logger.Component(logger.CompHTTP))
	start := time.Now()

	if h.opts.SecretToken != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.SecretToken)) != 1 {
			logger.Warn(ctx, logger.CompHTTP, "webhook.unauthorized", slog.String("status", "fail"))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	var upd tele.Update
	body := http.MaxBytesReader(w, r.Body, maxUpdateBytes)
	if err := json.NewDecoder(body).Decode(&upd); err != nil {
		logger.Warn(ctx, logger.CompHTTP, "webhook.decode", slog.String("status", "fail"), logger.Err(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid update payload"})
		return
	}
	_, _ = io.Copy(io.Discard, body)

	done := make(chan struct{})
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error(ctx, logger.CompHTTP, "webhook.panic",
					slog.String("status", "fail"),
					slog.Int("update_id", upd.ID),
					slog.Any("err", rec),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		h.proc.ProcessUpdate(upd)
	}()

	timer := time.NewTimer(h.opts.AckTimeout)
	defer timer.Stop()
	outcome := "done"
	select {
	case <-done:
	case <-timer.C:
		outcome = "ack_timeout"
	case <-r.Context().Done():
		outcome = "client_gone"
	}

	logger.Debug(ctx, logger.CompHTTP, "webhook.update",
		slog.String("status", "ok"),
		slog.Int("update_id", upd.ID),
		slog.String("outcome", outcome),
		slog.Duration("duration", time.Since(start)),
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

func (h *WebhookHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{Status: "ok"}
	if h.opts.Status != nil {
		st = h.opts.Status(r.Context())
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ServeWebhook serves h on addr until ctx is done, then shuts down and
// waits for in-flight updates.
func ServeWebhook(ctx context.Context, addr string, h *WebhookHandler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, logger.CompHTTP, "http.listen", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("telegram: webhook server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	h.Wait()
	logger.Info(ctx, logger.CompHTTP, "http.shutdown", slog.String("status", logger.Status(err)))
	return err
}
