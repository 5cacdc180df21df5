package middleware

import (
	"github.com/m3rciful/sheetbot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

const (
	messagesKey = "messages"
	keyboardKey = "kb"
	kindKey     = "update_kind"
)

// metricsContext wraps tele.Context to count sent messages and detect keyboard usage.
type metricsContext struct{ tele.Context }

func (m metricsContext) incMessages(opts []interface{}) {
	n, _ := m.Get(messagesKey).(int)
	m.Set(messagesKey, n+1)
	if hasKeyboard(opts) {
		m.Set(keyboardKey, true)
	}
}

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// Send proxies tele.Context.Send while updating message counters.
func (m metricsContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.incMessages(opts)
	}
	return err
}

// Reply proxies tele.Context.Reply while updating message counters.
func (m metricsContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.incMessages(opts)
	}
	return err
}

// EditOrSend proxies tele.Context.EditOrSend while updating message counters.
func (m metricsContext) EditOrSend(what interface{}, opts ...interface{}) error {
	err := m.Context.EditOrSend(what, opts...)
	if err == nil {
		m.incMessages(opts)
	}
	return err
}

// MessageMetricsMiddleware counts outbound messages per update and records
// the update kind with its outcome.
func MessageMetricsMiddleware(rec metrics.Recorder) tele.MiddlewareFunc {
	rec = metrics.OrNop(rec)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(messagesKey, 0)
			c.Set(keyboardKey, false)
			err := next(metricsContext{Context: c})
			outcome := "ok"
			if err != nil {
				outcome = "fail"
			}
			rec.RecordUpdate(UpdateKind(c), outcome)
			return err
		}
	}
}

// GetCounters reads message count and keyboard presence flags from context.
func GetCounters(c tele.Context) (int, bool) {
	msgs, _ := c.Get(messagesKey).(int)
	kb, _ := c.Get(keyboardKey).(bool)
	return msgs, kb
}

// UpdateKind names the update in c for limits and metrics.
func UpdateKind(c tele.Context) string {
	if kind, ok := c.Get(kindKey).(string); ok {
		return kind
	}
	upd := c.Update()
	kind := "other"
	switch {
	case upd.Callback != nil:
		kind = "callback"
	case upd.Message != nil:
		kind = "message"
	case upd.Query != nil:
		kind = "inline_query"
	}
	c.Set(kindKey, kind)
	return kind
}
