// Package telegram wraps the Bot API client with outbound rate limiting, per-call
// timeouts and flood-control retries, and adapts it to the access lifecycle.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultPollTimeout  = 30 * time.Second
	defaultMaxRetryWait = 30 * time.Second
	maxAttempts         = 3
)

// ErrTransport wraps network failures and timeouts talking to the Bot API.
var ErrTransport = errors.New("telegram transport failure")

// Options configures a Client. Zero values use the defaults.
type Options struct {
	// BaseURL overrides the public Bot API server.
	BaseURL string
	// Timeout bounds each call attempt (default 10s).
	Timeout time.Duration
	// PollTimeout is the getUpdates long-poll timeout (default 30s).
	PollTimeout time.Duration
	// RatePerSecond caps outbound calls; <= 0 disables the limiter.
	RatePerSecond float64
	// MaxRetryWait is the longest retry_after the client sleeps through before giving up (default 30s).
	MaxRetryWait time.Duration
}

// Client calls the Bot API through go-telegram/bot.
type Client struct {
	bot          *bot.Bot
	token        string
	timeout      time.Duration
	maxRetryWait time.Duration
	limiter      *rate.Limiter
	sleep        func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	onUpdate bot.HandlerFunc
}

// NewClient returns a client for token. The token is not verified until the first call.
func NewClient(token string, opts Options) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: bot token not configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.MaxRetryWait <= 0 {
		opts.MaxRetryWait = defaultMaxRetryWait
	}
	c := &Client{
		token:        token,
		timeout:      opts.Timeout,
		maxRetryWait: opts.MaxRetryWait,
		sleep:        sleepContext,
	}
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	botOpts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithNotAsyncHandlers(),
		bot.WithDefaultHandler(c.dispatch),
		bot.WithAllowedUpdates(bot.AllowedUpdates{"message", "callback_query"}),
		bot.WithHTTPClient(opts.PollTimeout, &http.Client{Timeout: opts.PollTimeout + opts.Timeout}),
		bot.WithErrorsHandler(func(err error) {
			log.Printf("telegram: %v", redactToken(err, token))
		}),
	}
	if opts.BaseURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(strings.TrimRight(opts.BaseURL, "/")))
	}
	b, err := bot.New(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", redactToken(err, token))
	}
	c.bot = b
	return c, nil
}

// CreateChatInviteLink creates an invite link for chatID that expires at expireAt.
// memberLimit > 0 caps how many users may join through it.
func (c *Client) CreateChatInviteLink(ctx context.Context, chatID string, expireAt time.Time, memberLimit int) (*models.ChatInviteLink, error) {
	var link *models.ChatInviteLink
	err := c.call(ctx, "createChatInviteLink", func(ctx context.Context) error {
		var err error
		link, err = c.bot.CreateChatInviteLink(ctx, &bot.CreateChatInviteLinkParams{
			ChatID:      chatID,
			ExpireDate:  int(expireAt.Unix()),
			MemberLimit: memberLimit,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if link == nil || link.InviteLink == "" {
		return nil, errors.New("telegram: createChatInviteLink: empty invite link in response")
	}
	return link, nil
}

// BanChatMember removes userID from chatID and prevents rejoining through old invites.
func (c *Client) BanChatMember(ctx context.Context, chatID string, userID int64) error {
	return c.call(ctx, "banChatMember", func(ctx context.Context) error {
		_, err := c.bot.BanChatMember(ctx, &bot.BanChatMemberParams{ChatID: chatID, UserID: userID})
		return err
	})
}

// SendMessage posts text to chatID with an optional inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID string, text string, markup *models.InlineKeyboardMarkup) (*models.Message, error) {
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	var msg *models.Message
	err := c.call(ctx, "sendMessage", func(ctx context.Context) error {
		var err error
		msg, err = c.bot.SendMessage(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// AnswerCallbackQuery acknowledges a callback button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	return c.call(ctx, "answerCallbackQuery", func(ctx context.Context) error {
		_, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackQueryID, Text: text})
		return err
	})
}

// EditMessageText replaces the text of a message the bot sent, dropping its keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID string, messageID int, text string) error {
	return c.call(ctx, "editMessageText", func(ctx context.Context) error {
		_, err := c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{ChatID: chatID, MessageID: messageID, Text: text})
		return err
	})
}

// call runs one Bot API method behind the limiter with a per-attempt timeout.
// A 429 is retried after the server's retry_after when it fits within maxRetryWait.
func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx)
		timedOut := callCtx.Err() != nil
		cancel()
		if err == nil {
			return nil
		}

		wait, flood := retryAfter(err)
		if !flood || attempt >= maxAttempts || wait > c.maxRetryWait {
			return c.wrap(method, err, timedOut)
		}
		log.Printf("telegram: %s rate limited, retrying in %s (attempt %d)", method, wait, attempt)
		if err := c.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
		}
	}
}

func (c *Client) wrap(method string, err error, timedOut bool) error {
	var netErr net.Error
	transport := timedOut || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr)
	err = redactToken(err, c.token)
	if transport {
		return fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}
	return fmt.Errorf("telegram: %s: %w", method, err)
}

func (c *Client) dispatch(ctx context.Context, b *bot.Bot, u *models.Update) {
	c.mu.RLock()
	h := c.onUpdate
	c.mu.RUnlock()
	if h != nil {
		h(ctx, b, u)
	}
}

func (c *Client) setUpdateHandler(h bot.HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = h
}

// retryAfter reports the flood-control wait of a 429 response.
func retryAfter(err error) (time.Duration, bool) {
	var tooMany *bot.TooManyRequestsError
	if !errors.As(err, &tooMany) {
		return 0, false
	}
	return time.Duration(tooMany.RetryAfter) * time.Second, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// redactToken keeps the bot token out of errors that embed the request URL.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
