package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpdate("text", "ok")
	c.RecordUpdate("text", "ok")
	c.RecordUpdate("action", "fail")
	c.RecordRegistration("inserted")
	c.RecordVerification("denied")
	c.RecordSessionDegraded("get")
	c.RecordMessagesSent(3)
	c.RecordMessagesSent(0)
	c.RecordRateLimited("message")
	c.RecordHandlerLatency("command:start", 120*time.Millisecond)

	if got := testutil.ToFloat64(c.updates.WithLabelValues("text", "ok")); got != 2 {
		t.Fatalf("text/ok updates = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.updates.WithLabelValues("action", "fail")); got != 1 {
		t.Fatalf("action/fail updates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.messagesSent); got != 3 {
		t.Fatalf("messages sent = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.sessionDegrade.WithLabelValues("get")); got != 1 {
		t.Fatalf("session degraded = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"sheetbot_updates_total",
		"sheetbot_handler_duration_seconds",
		"sheetbot_registrations_total",
		"sheetbot_verifications_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRegistration("updated")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `sheetbot_registrations_total{result="updated"} 1`) {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(Nop); !ok {
		t.Fatalf("OrNop(nil) should be Nop")
	}
	OrNop(nil).RecordUpdate("text", "ok")
}
