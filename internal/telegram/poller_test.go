package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
)

// updateFeed serves getUpdates: queued batches first, then empty long polls.
type updateFeed struct {
	mu      sync.Mutex
	batches []string
	offsets []string
}

func (f *updateFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
		w.Write([]byte(`{"ok":true,"result":true}`))
		return
	}
	offset := ""
	if err := r.ParseMultipartForm(1 << 20); err == nil && r.MultipartForm != nil {
		if v := r.MultipartForm.Value["offset"]; len(v) > 0 {
			offset = v[0]
		}
	}
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	var body string
	if len(f.batches) > 0 {
		body = f.batches[0]
		f.batches = f.batches[1:]
	}
	f.mu.Unlock()

	if body == "" {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
		body = `[]`
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true,"result":` + body + `}`))
}

func (f *updateFeed) sawOffset(offset string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.offsets {
		if o == offset {
			return true
		}
	}
	return false
}

func startPoller(t *testing.T, feed *updateFeed, handler Handler) (stop func()) {
	t.Helper()
	server := httptest.NewServer(feed)
	t.Cleanup(server.Close)
	c := newTestClient(t, server, Options{PollTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		NewPoller(c, handler).Run(ctx)
		close(finished)
	}()
	return func() {
		cancel()
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

func TestPoller_DispatchesAndAdvancesOffset(t *testing.T) {
	feed := &updateFeed{batches: []string{`[
		{"update_id":10,"message":{"message_id":1,"from":{"id":42,"is_bot":false,"first_name":"A"},"chat":{"id":42,"type":"private"},"date":1,"text":"/start"}},
		{"update_id":11,"callback_query":{"id":"cb","from":{"id":42,"is_bot":false,"first_name":"A"},"chat_instance":"x","data":"language_en"}}
	]`}}

	var mu sync.Mutex
	var seen []*models.Update
	done := make(chan struct{})
	stop := startPoller(t, feed, HandlerFunc(func(ctx context.Context, u *models.Update) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, u)
		if len(seen) == 2 {
			close(done)
		}
	}))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("handlers were not called")
	}
	deadline := time.Now().Add(3 * time.Second)
	for !feed.sawOffset("12") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stop()

	if !feed.sawOffset("12") {
		feed.mu.Lock()
		t.Errorf("offsets = %v, want a poll acknowledging update 11", feed.offsets)
		feed.mu.Unlock()
	}
	mu.Lock()
	defer mu.Unlock()
	var command, data string
	for _, u := range seen {
		if u.Message != nil {
			command = Command(u.Message)
		}
		if u.CallbackQuery != nil {
			data = u.CallbackQuery.Data
		}
	}
	if command != "start" || data != "language_en" {
		t.Errorf("command = %q, data = %q", command, data)
	}
}

func TestPoller_HandlersOutliveShutdown(t *testing.T) {
	feed := &updateFeed{batches: []string{`[{"update_id":1,"message":{"message_id":1,"chat":{"id":1,"type":"private"},"date":1,"text":"/status"}}]`}}

	started := make(chan struct{})
	release := make(chan struct{})
	var handlerErr error
	finished := make(chan struct{})
	stop := startPoller(t, feed, HandlerFunc(func(ctx context.Context, u *models.Update) {
		close(started)
		<-release
		handlerErr = ctx.Err()
		close(finished)
	}))

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("handler was not called")
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	stop()

	select {
	case <-finished:
	default:
		t.Fatal("Run returned before the in-flight handler finished")
	}
	if handlerErr != nil {
		t.Errorf("handler ctx err = %v, want a context detached from shutdown", handlerErr)
	}
}

func TestPoller_HandlerPanicDoesNotStopPolling(t *testing.T) {
	feed := &updateFeed{batches: []string{
		`[{"update_id":1,"message":{"message_id":1,"chat":{"id":1,"type":"private"},"date":1,"text":"/start"}}]`,
		`[{"update_id":2,"message":{"message_id":2,"chat":{"id":1,"type":"private"},"date":1,"text":"/help"}}]`,
	}}
	got := make(chan int64, 2)
	stop := startPoller(t, feed, HandlerFunc(func(_ context.Context, u *models.Update) {
		if u.ID == 1 {
			panic("bad update")
		}
		got <- u.ID
	}))
	defer stop()

	select {
	case id := <-got:
		if id != 2 {
			t.Errorf("update id = %d, want 2", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("second update was not handled")
	}
}
