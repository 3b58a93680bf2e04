package telegram

import (
	"context"
	"log"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Handler processes one update. Each update is handled in its own goroutine.
type Handler interface {
	HandleUpdate(ctx context.Context, u *models.Update)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u *models.Update)

// HandleUpdate calls f(ctx, u).
func (f HandlerFunc) HandleUpdate(ctx context.Context, u *models.Update) { f(ctx, u) }

// Poller long-polls getUpdates through a Client and dispatches updates to a Handler.
type Poller struct {
	client  *Client
	handler Handler

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPoller returns a poller reading updates through client.
func NewPoller(client *Client, handler Handler) *Poller {
	return &Poller{client: client, handler: handler}
}

// Run polls until ctx is cancelled, then waits for in-flight handlers and returns.
// Handlers run on a context detached from ctx so a shutdown lets them finish.
func (p *Poller) Run(ctx context.Context) {
	handlerCtx := context.WithoutCancel(ctx)
	p.client.setUpdateHandler(func(_ context.Context, _ *bot.Bot, u *models.Update) {
		p.dispatch(handlerCtx, u)
	})
	p.client.bot.Start(ctx)
	p.client.setUpdateHandler(nil)

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) dispatch(ctx context.Context, u *models.Update) {
	if u == nil {
		return
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		log.Printf("telegram: dropping update %d received after shutdown", u.ID)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("telegram: handler panic on update %d: %v", u.ID, r)
			}
		}()
		p.handler.HandleUpdate(ctx, u)
	}()
}
