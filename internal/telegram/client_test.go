package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const testToken = "123456:test-token"

// botAPI is a fake Bot API that records form fields per method and replies with queued bodies.
type botAPI struct {
	t *testing.T

	mu       sync.Mutex
	replies  map[string][]string
	requests map[string][]map[string]string
	block    map[string]bool
}

func newBotAPI(t *testing.T, replies map[string][]string) (*botAPI, *httptest.Server) {
	t.Helper()
	if replies == nil {
		replies = map[string][]string{}
	}
	api := &botAPI{t: t, replies: replies, requests: map[string][]map[string]string{}, block: map[string]bool{}}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return api, server
}

func (a *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/bot"+testToken+"/") {
		a.t.Errorf("path = %q, want /bot<token>/<method>", r.URL.Path)
	}
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	fields := map[string]string{}
	if err := r.ParseMultipartForm(1 << 20); err == nil && r.MultipartForm != nil {
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				fields[k] = strings.Trim(v[0], `"`)
			}
		}
	}

	a.mu.Lock()
	a.requests[method] = append(a.requests[method], fields)
	reply := `{"ok":true,"result":true}`
	if queue := a.replies[method]; len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			a.replies[method] = queue[1:]
		}
	}
	block := a.block[method]
	a.mu.Unlock()

	if block {
		<-r.Context().Done()
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(reply))
}

func (a *botAPI) last(method string) map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	reqs := a.requests[method]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

func (a *botAPI) count(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests[method])
}

func newTestClient(t *testing.T, server *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.BaseURL = server.URL
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	c, err := NewClient(testToken, opts)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("tok", Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, defaultTimeout)
	}
	if c.maxRetryWait != defaultMaxRetryWait {
		t.Errorf("maxRetryWait = %v, want %v", c.maxRetryWait, defaultMaxRetryWait)
	}
	if c.limiter != nil {
		t.Error("limiter should be nil when rate is 0")
	}
	c, err = NewClient("tok", Options{RatePerSecond: 0.5})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.limiter == nil {
		t.Error("limiter should be set for positive rate")
	}
}

func TestNewClient_MissingToken(t *testing.T) {
	if _, err := NewClient("  ", Options{}); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestCreateChatInviteLink_Success(t *testing.T) {
	api, server := newBotAPI(t, map[string][]string{
		"createChatInviteLink": {`{"ok":true,"result":{"invite_link":"https://t.me/+abc","expire_date":1714566900,"member_limit":1,"is_revoked":false}}`},
	})
	c := newTestClient(t, server, Options{})

	link, err := c.CreateChatInviteLink(context.Background(), "-100123", time.Unix(1714566900, 0), 1)
	if err != nil {
		t.Fatalf("CreateChatInviteLink: %v", err)
	}
	if link.InviteLink != "https://t.me/+abc" {
		t.Errorf("InviteLink = %q", link.InviteLink)
	}
	req := api.last("createChatInviteLink")
	if req["chat_id"] != "-100123" {
		t.Errorf("chat_id = %q", req["chat_id"])
	}
	if req["expire_date"] != "1714566900" {
		t.Errorf("expire_date = %q", req["expire_date"])
	}
	if req["member_limit"] != "1" {
		t.Errorf("member_limit = %q", req["member_limit"])
	}
}

func TestCreateChatInviteLink_EmptyLink(t *testing.T) {
	_, server := newBotAPI(t, map[string][]string{
		"createChatInviteLink": {`{"ok":true,"result":{"invite_link":""}}`},
	})
	c := newTestClient(t, server, Options{})
	if _, err := c.CreateChatInviteLink(context.Background(), "-1", time.Now(), 1); err == nil {
		t.Fatal("expected error for an empty invite link")
	}
}

func TestCall_APIError(t *testing.T) {
	_, server := newBotAPI(t, map[string][]string{
		"banChatMember": {`{"ok":false,"error_code":400,"description":"Bad Request: not enough rights"}`},
	})
	c := newTestClient(t, server, Options{})

	err := c.BanChatMember(context.Background(), "-100123", 42)
	if !errors.Is(err, bot.ErrorBadRequest) {
		t.Fatalf("error = %v, want bad request", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Error("an API rejection is not a transport failure")
	}
	if !strings.Contains(err.Error(), "banChatMember") || !strings.Contains(err.Error(), "not enough rights") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestCall_RetriesAfterFloodWait(t *testing.T) {
	api, server := newBotAPI(t, map[string][]string{
		"banChatMember": {
			`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`,
			`{"ok":true,"result":true}`,
		},
	})
	c := newTestClient(t, server, Options{})
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	if err := c.BanChatMember(context.Background(), "-100123", 42); err != nil {
		t.Fatalf("BanChatMember: %v", err)
	}
	if api.count("banChatMember") != 2 {
		t.Errorf("requests = %d, want 2", api.count("banChatMember"))
	}
	if len(waits) != 1 || waits[0] != 3*time.Second {
		t.Errorf("waits = %v, want [3s]", waits)
	}
}

func TestCall_FloodWaitBeyondLimitFails(t *testing.T) {
	api, server := newBotAPI(t, map[string][]string{
		"banChatMember": {`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 120","parameters":{"retry_after":120}}`},
	})
	c := newTestClient(t, server, Options{MaxRetryWait: 10 * time.Second})
	c.sleep = func(context.Context, time.Duration) error {
		t.Error("should not wait past MaxRetryWait")
		return nil
	}

	err := c.BanChatMember(context.Background(), "-100123", 42)
	if err == nil {
		t.Fatal("expected error")
	}
	if wait, ok := retryAfter(err); !ok || wait != 120*time.Second {
		t.Errorf("retryAfter = %v, %v; want 2m, true", wait, ok)
	}
	if api.count("banChatMember") != 1 {
		t.Errorf("requests = %d, want 1", api.count("banChatMember"))
	}
}

func TestCall_FloodWaitGivesUpAfterMaxAttempts(t *testing.T) {
	api, server := newBotAPI(t, map[string][]string{
		"sendMessage": {`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`},
	})
	c := newTestClient(t, server, Options{})
	c.sleep = func(context.Context, time.Duration) error { return nil }

	if _, err := c.SendMessage(context.Background(), "1", "hi", nil); err == nil {
		t.Fatal("expected error")
	}
	if api.count("sendMessage") != maxAttempts {
		t.Errorf("requests = %d, want %d", api.count("sendMessage"), maxAttempts)
	}
}

func TestCall_Timeout(t *testing.T) {
	api, server := newBotAPI(t, nil)
	api.block["sendMessage"] = true
	c := newTestClient(t, server, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := c.SendMessage(context.Background(), "1", "hi", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if strings.Contains(err.Error(), testToken) {
		t.Errorf("error leaks token: %q", err.Error())
	}
	if time.Since(start) > time.Second {
		t.Error("call should be bounded by the client timeout")
	}
}

func TestSendMessage_WithKeyboard(t *testing.T) {
	api, server := newBotAPI(t, map[string][]string{
		"sendMessage": {`{"ok":true,"result":{"message_id":7,"chat":{"id":42,"type":"private"},"date":1,"text":"pick"}}`},
	})
	c := newTestClient(t, server, Options{})

	markup := &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{{
		{Text: "Português", CallbackData: "language_pt"},
		{Text: "Bot", URL: "https://t.me/testbot"},
	}}}
	msg, err := c.SendMessage(context.Background(), "42", "pick", markup)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != 7 || msg.Chat.ID != 42 {
		t.Errorf("message = %+v", msg)
	}
	kb := api.last("sendMessage")["reply_markup"]
	if !strings.Contains(kb, `"callback_data":"language_pt"`) || !strings.Contains(kb, `"url":"https://t.me/testbot"`) {
		t.Errorf("reply_markup = %s", kb)
	}

	if _, err := c.SendMessage(context.Background(), "42", "plain", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, ok := api.last("sendMessage")["reply_markup"]; ok {
		t.Error("plain message should not carry reply_markup")
	}
}

func TestEditAndAnswer(t *testing.T) {
	api, server := newBotAPI(t, map[string][]string{
		"editMessageText": {`{"ok":true,"result":{"message_id":9,"chat":{"id":42,"type":"private"},"date":1,"text":"done"}}`},
	})
	c := newTestClient(t, server, Options{})

	if err := c.AnswerCallbackQuery(context.Background(), "cb-1", ""); err != nil {
		t.Fatalf("AnswerCallbackQuery: %v", err)
	}
	if err := c.EditMessageText(context.Background(), "42", 9, "done"); err != nil {
		t.Fatalf("EditMessageText: %v", err)
	}
	if got := api.last("answerCallbackQuery")["callback_query_id"]; got != "cb-1" {
		t.Errorf("callback_query_id = %q", got)
	}
	edit := api.last("editMessageText")
	if edit["message_id"] != "9" || edit["text"] != "done" {
		t.Errorf("editMessageText fields = %v", edit)
	}
}

func TestGateway(t *testing.T) {
	api, server := newBotAPI(t, map[string][]string{
		"createChatInviteLink": {`{"ok":true,"result":{"invite_link":"https://t.me/+gw"}}`},
		"sendMessage":          {`{"ok":true,"result":{"message_id":1,"chat":{"id":42,"type":"private"},"date":1}}`},
	})
	g := NewGateway(newTestClient(t, server, Options{}))
	ctx := context.Background()

	link, err := g.CreateTimedInvite(ctx, "-100", time.Now().Add(time.Hour))
	if err != nil || link != "https://t.me/+gw" {
		t.Fatalf("CreateTimedInvite = %q, %v", link, err)
	}
	if api.last("createChatInviteLink")["member_limit"] != "1" {
		t.Error("invites should be single-use")
	}
	if err := g.RevokeMember(ctx, "-100", 42); err != nil {
		t.Fatalf("RevokeMember: %v", err)
	}
	if got := api.last("banChatMember")["user_id"]; got != "42" {
		t.Errorf("banChatMember user_id = %q", got)
	}
	if err := g.Notify(ctx, 42, "bye"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := api.last("sendMessage")["chat_id"]; got != "42" {
		t.Errorf("sendMessage chat_id = %q", got)
	}
}

func TestCommand(t *testing.T) {
	testCases := map[string]string{
		"/start":          "start",
		"/start@trialbot": "start",
		"/status now":     "status",
		"/help\nplease":   "help",
		"hello":           "",
		"/":               "",
	}
	for text, want := range testCases {
		if got := Command(&models.Message{Text: text}); got != want {
			t.Errorf("Command(%q) = %q, want %q", text, got, want)
		}
	}
	if Command(nil) != "" {
		t.Error("nil message should have no command")
	}
}

func TestCallbackOrigin(t *testing.T) {
	testCases := []struct {
		name    string
		q       *models.CallbackQuery
		chat    int64
		message int
		ok      bool
	}{
		{"nil", nil, 0, 0, false},
		{"no message", &models.CallbackQuery{}, 0, 0, false},
		{
			"message",
			&models.CallbackQuery{Message: models.MaybeInaccessibleMessage{Message: &models.Message{ID: 7, Chat: models.Chat{ID: 42}}}},
			42, 7, true,
		},
		{
			"inaccessible message",
			&models.CallbackQuery{Message: models.MaybeInaccessibleMessage{InaccessibleMessage: &models.InaccessibleMessage{MessageID: 8, Chat: models.Chat{ID: 43}}}},
			43, 8, true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			chat, msg, ok := CallbackOrigin(tc.q)
			if chat != tc.chat || msg != tc.message || ok != tc.ok {
				t.Errorf("CallbackOrigin = %d, %d, %v; want %d, %d, %v", chat, msg, ok, tc.chat, tc.message, tc.ok)
			}
		})
	}
}
