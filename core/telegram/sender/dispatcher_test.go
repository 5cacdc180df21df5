package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	err := d.Enqueue(context.Background(), "send.text", func() error {
		if calls.Add(1) == 1 {
			return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Close()

	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
	if d.SentCount() != 1 || d.ErrorCount() != 0 {
		t.Fatalf("sent=%d errs=%d, want 1/0", d.SentCount(), d.ErrorCount())
	}
}

func TestDispatcherDoesNotRetryAPIErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "send.text", func() error {
		calls.Add(1)
		return errors.New("telegram: chat not found (400)")
	})
	d.Close()

	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("errs = %d, want 1", d.ErrorCount())
	}
}

func TestDoFallsBackAfterClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()

	if err := d.Enqueue(context.Background(), "x", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after close = %v, want ErrQueueClosed", err)
	}
	ran := false
	if err := d.Do(context.Background(), "x", func() error { ran = true; return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Fatal("Do should run synchronously after close")
	}
}

func TestNilDispatcherRunsInline(t *testing.T) {
	var d *Dispatcher
	want := errors.New("boom")
	if err := d.Do(context.Background(), "x", func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("Do = %v, want %v", err, want)
	}
}

func TestClassifyAndSanitize(t *testing.T) {
	if got := classifyError(&tele.Error{Code: 502}); got != "http_5xx" {
		t.Errorf("classify 502 = %q", got)
	}
	if got := classifyError(&tele.Error{Code: 403}); got != "http_4xx" {
		t.Errorf("classify 403 = %q", got)
	}
	if got := classifyError(context.DeadlineExceeded); got != "timeout" {
		t.Errorf("classify deadline = %q", got)
	}
	msg := sanitizeErrorMessage(errors.New(`Post "https://api.telegram.org/bot123:AA-bb_cc/sendMessage": EOF`))
	if want := `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF`; msg != want {
		t.Errorf("sanitize = %q, want %q", msg, want)
	}
}
