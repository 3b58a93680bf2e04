// Package broadcast posts promotional messages to the configured group chats.
package broadcast

import (
	"context"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-telegram/bot/models"

	"trial-access-bot/internal/i18n"
)

// Sender posts a message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, text string, markup *models.InlineKeyboardMarkup) (*models.Message, error)
}

// Catalog supplies the localized broadcast texts.
type Catalog interface {
	Supported() []string
	Broadcasts(locale string) []string
	Text(locale, key string, args ...any) string
}

// Broadcaster sends one randomly chosen message per destination per run.
type Broadcaster struct {
	sender       Sender
	catalog      Catalog
	destinations []string
	botURL       string
	timeout      time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Broadcaster whose button links to https://t.me/<botUsername>.
func New(sender Sender, catalog Catalog, destinations []string, botUsername string, timeout time.Duration) *Broadcaster {
	return &Broadcaster{
		sender:       sender,
		catalog:      catalog,
		destinations: destinations,
		botURL:       "https://t.me/" + botUsername,
		timeout:      timeout,
		rnd:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Run sends to every destination and returns how many sends succeeded.
// A failed destination is logged and skipped.
func (b *Broadcaster) Run(ctx context.Context) int {
	sent := 0
	for _, dest := range b.destinations {
		if ctx.Err() != nil {
			break
		}
		locale, text, ok := b.pick()
		if !ok {
			log.Printf("broadcast: no messages configured")
			return sent
		}
		markup := &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: b.catalog.Text(locale, i18n.KeyBroadcastButton), URL: b.botURL},
		}}}
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		_, err := b.sender.SendMessage(callCtx, dest, text, markup)
		cancel()
		if err != nil {
			log.Printf("broadcast: send to %s: %v", dest, err)
			continue
		}
		sent++
	}
	return sent
}

func (b *Broadcaster) pick() (locale, text string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	locales := b.catalog.Supported()
	if len(locales) == 0 {
		return "", "", false
	}
	locale = locales[b.rnd.IntN(len(locales))]
	msgs := b.catalog.Broadcasts(locale)
	if len(msgs) == 0 {
		return "", "", false
	}
	return locale, msgs[b.rnd.IntN(len(msgs))], true
}
