package telegram

import (
	"context"
	"strconv"
	"time"
)

// Gateway adapts Client to the access lifecycle: one destination chat, users addressed by id.
type Gateway struct {
	Client *Client
}

// NewGateway returns a Gateway over client.
func NewGateway(client *Client) *Gateway {
	return &Gateway{Client: client}
}

// CreateTimedInvite creates a single-use invite to destination that expires at expiresAt.
func (g *Gateway) CreateTimedInvite(ctx context.Context, destination string, expiresAt time.Time) (string, error) {
	link, err := g.Client.CreateChatInviteLink(ctx, destination, expiresAt, 1)
	if err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// RevokeMember bans principalID from destination.
func (g *Gateway) RevokeMember(ctx context.Context, destination string, principalID int64) error {
	return g.Client.BanChatMember(ctx, destination, principalID)
}

// Notify sends a plain text message to the principal's private chat.
func (g *Gateway) Notify(ctx context.Context, principalID int64, text string) error {
	_, err := g.Client.SendMessage(ctx, strconv.FormatInt(principalID, 10), text, nil)
	return err
}
