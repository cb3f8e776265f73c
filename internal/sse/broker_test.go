package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/starford/syllabus/internal/catalog"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "catalog.reloaded", Data: map[string]string{"fingerprint": "abc"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: catalog.reloaded") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"fingerprint":"abc"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

// drain collects the event types delivered within wait.
func drain(ch chan []byte, wait time.Duration) []string {
	var types []string
	deadline := time.After(wait)
	for {
		select {
		case msg := <-ch:
			line, _, _ := strings.Cut(string(msg), "\n")
			types = append(types, strings.TrimPrefix(line, "event: "))
		case <-deadline:
			return types
		}
	}
}

func TestPublishReload_NeverThrottled(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishReload(catalog.Stats{Fingerprint: "one", Report: catalog.Report{Modules: 3}})
	b.PublishReload(catalog.Stats{Fingerprint: "two", Report: catalog.Report{Modules: 4}})

	got := drain(ch, 100*time.Millisecond)
	if len(got) != 2 || got[0] != "catalog.reloaded" || got[1] != "catalog.reloaded" {
		t.Errorf("events = %v, want two catalog.reloaded", got)
	}
}

func TestPublishReloadFailed_Throttle(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishReloadFailed(errors.New("module_details.csv: missing column title"), "one")
	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: catalog.reload_failed") || !strings.Contains(s, `"fingerprint":"one"`) {
			t.Errorf("failure event = %q", s)
		}
		if !strings.Contains(s, "missing column title") {
			t.Errorf("failure event missing error: %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for failure event")
	}

	// Further failures inside the throttle window are dropped.
	b.PublishReloadFailed(errors.New("still broken"), "one")
	b.PublishReloadFailed(errors.New("still broken"), "one")
	if got := drain(ch, 100*time.Millisecond); len(got) != 0 {
		t.Errorf("throttled failures delivered: %v", got)
	}

	// A successful reload ends the streak, so the next failure is reported.
	b.PublishReload(catalog.Stats{Fingerprint: "two"})
	if got := drain(ch, 100*time.Millisecond); len(got) != 1 || got[0] != "catalog.reloaded" {
		t.Fatalf("events = %v, want catalog.reloaded", got)
	}
	b.PublishReloadFailed(errors.New("broken again"), "two")
	if got := drain(ch, 100*time.Millisecond); len(got) != 1 || got[0] != "catalog.reload_failed" {
		t.Errorf("events = %v, want catalog.reload_failed", got)
	}

	b.PublishReloadFailed(nil, "two")
	if got := drain(ch, 50*time.Millisecond); len(got) != 0 {
		t.Errorf("nil error delivered: %v", got)
	}
}

func TestSSEHandler(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := &lockedRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishReload(catalog.Stats{Fingerprint: "xyz"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.String()
	if !strings.Contains(body, "event: catalog.reloaded") {
		t.Errorf("handler output missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Buffer holds 64; the rest must be dropped without blocking.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Safe no-ops after close.
	b.Publish(Event{Type: "catalog.reloaded"})
	b.PublishReload(catalog.Stats{})
	b.PublishReloadFailed(errors.New("late"), "")
	b.Close()
}

// lockedRecorder guards the body so the test can read it while the handler
// goroutine writes.
type lockedRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *lockedRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *lockedRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}
