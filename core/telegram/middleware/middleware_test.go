package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/sheetbot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls []string
	texts []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.calls = append(f.calls, method)
	if text, ok := body["text"].(string); ok {
		f.texts = append(f.texts, text)
	}
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
}

func (f *fakeAPI) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type countingRecorder struct {
	metrics.Nop
	mu      sync.Mutex
	limited map[string]int
	updates map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{limited: map[string]int{}, updates: map[string]int{}}
}

func (r *countingRecorder) RecordRateLimited(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limited[kind]++
}

func (r *countingRecorder) RecordUpdate(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[kind+"/"+outcome]++
}

func newTestBot(t *testing.T) (*tele.Bot, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	bot, err := tele.NewBot(tele.Settings{Token: "123:test", URL: srv.URL, Offline: true, Synchronous: true})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return bot, api
}

func messageFrom(bot *tele.Bot, userID int64, text string) tele.Context {
	return bot.NewContext(tele.Update{
		ID: int(userID),
		Message: &tele.Message{
			ID:     1,
			Text:   text,
			Sender: &tele.User{ID: userID, Username: "alice"},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		},
	})
}

func callbackFrom(bot *tele.Bot, userID int64) tele.Context {
	return bot.NewContext(tele.Update{
		ID: int(userID) + 1000,
		Callback: &tele.Callback{
			ID:     "cb",
			Data:   "\fverify_access",
			Sender: &tele.User{ID: userID},
		},
	})
}

func TestRateLimitPerUser(t *testing.T) {
	bot, _ := newTestBot(t)
	rec := newCountingRecorder()

	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Burst:     1,
		Exclude:   map[string]struct{}{"callback": {}},
		Metrics:   rec,
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	handled := 0
	h := mw(func(tele.Context) error { handled++; return nil })

	for i := 0; i < 3; i++ {
		if err := h(messageFrom(bot, 1, "hi")); err != nil {
			t.Fatalf("handler: %v", err)
		}
	}
	if err := h(messageFrom(bot, 2, "hi")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := h(callbackFrom(bot, 1)); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if handled != 3 {
		t.Fatalf("handled = %d, want 3 (first message of each user plus the excluded callback)", handled)
	}
	if limited != 2 {
		t.Fatalf("limited = %d, want 2", limited)
	}
	if got := rec.limited["message"]; got != 2 {
		t.Fatalf("rate limited metric = %d, want 2", got)
	}
}

func TestRecoverSendsApology(t *testing.T) {
	bot, api := newTestBot(t)
	h := Recover("sorry")(func(tele.Context) error { panic("boom") })

	err := h(messageFrom(bot, 7, "/start"))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want panic error", err)
	}
	if got := api.sent(); len(got) != 1 || got[0] != "sorry" {
		t.Fatalf("sent = %v, want [sorry]", got)
	}
}

func TestRecoverPassesErrorsThrough(t *testing.T) {
	bot, api := newTestBot(t)
	want := errors.New("plain")
	h := RecoverMiddleware(func(tele.Context) error { return want })
	if err := h(messageFrom(bot, 7, "x")); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if len(api.sent()) != 0 {
		t.Fatal("no apology expected without a panic")
	}
}

func TestMessageMetricsCountsSends(t *testing.T) {
	bot, _ := newTestBot(t)
	rec := newCountingRecorder()

	c := messageFrom(bot, 3, "hello")
	h := LoggerMiddleware(MessageMetricsMiddleware(rec)(func(c tele.Context) error {
		if err := c.Send("one"); err != nil {
			return err
		}
		return c.Send("two", &tele.ReplyMarkup{})
	}))
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	msgs, kb := GetCounters(c)
	if msgs != 2 || !kb {
		t.Fatalf("counters = %d/%v, want 2/true", msgs, kb)
	}
	if got := rec.updates["message/ok"]; got != 1 {
		t.Fatalf("updates metric = %d, want 1", got)
	}
}

func TestUpdateKind(t *testing.T) {
	bot, _ := newTestBot(t)
	if got := UpdateKind(messageFrom(bot, 1, "x")); got != "message" {
		t.Errorf("message kind = %q", got)
	}
	if got := UpdateKind(callbackFrom(bot, 1)); got != "callback" {
		t.Errorf("callback kind = %q", got)
	}
	if got := UpdateKind(bot.NewContext(tele.Update{ID: 5})); got != "other" {
		t.Errorf("empty kind = %q", got)
	}
}
