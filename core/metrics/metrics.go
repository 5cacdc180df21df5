// Package metrics exposes Prometheus counters for the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what handlers and middleware report to.
type Recorder interface {
	RecordUpdate(kind, outcome string)
	RecordHandlerLatency(handler string, d time.Duration)
	RecordMessagesSent(n int)
	RecordRateLimited(kind string)
	RecordRegistration(result string)
	RecordVerification(result string)
	RecordSessionDegraded(op string)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	updates        *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	messagesSent   prometheus.Counter
	rateLimited    *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	sessionDegrade *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetbot_updates_total",
			Help: "Telegram updates handled, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sheetbot_handler_duration_seconds",
			Help:    "Handler latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetbot_messages_sent_total",
			Help: "Messages sent to users.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetbot_rate_limited_total",
			Help: "Updates dropped by the rate limiter, by kind.",
		}, []string{"kind"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetbot_registrations_total",
			Help: "Spreadsheet registrations, by result.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetbot_verifications_total",
			Help: "Access verifications, by result.",
		}, []string{"result"}),
		sessionDegrade: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetbot_session_degraded_total",
			Help: "Session backend failures absorbed, by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.updates,
		c.latency,
		c.messagesSent,
		c.rateLimited,
		c.registrations,
		c.verifications,
		c.sessionDegrade,
	)
	return c
}

func (c *Collector) RecordUpdate(kind, outcome string) {
	c.updates.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordHandlerLatency(handler string, d time.Duration) {
	c.latency.WithLabelValues(handler).Observe(d.Seconds())
}

func (c *Collector) RecordMessagesSent(n int) {
	if n > 0 {
		c.messagesSent.Add(float64(n))
	}
}

func (c *Collector) RecordRateLimited(kind string) {
	c.rateLimited.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordRegistration(result string) {
	c.registrations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordVerification(result string) {
	c.verifications.WithLabelValues(result).Inc()
}

func (c *Collector) RecordSessionDegraded(op string) {
	c.sessionDegrade.WithLabelValues(op).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordUpdate(string, string)                {}
func (Nop) RecordHandlerLatency(string, time.Duration) {}
func (Nop) RecordMessagesSent(int)                     {}
func (Nop) RecordRateLimited(string)                   {}
func (Nop) RecordRegistration(string)                  {}
func (Nop) RecordVerification(string)                  {}
func (Nop) RecordSessionDegraded(string)               {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
