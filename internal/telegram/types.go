package telegram

import (
	"strings"

	"github.com/go-telegram/bot/models"
)

// Command returns the bot command of a message ("/start@bot arg" -> "start"), or "".
func Command(msg *models.Message) string {
	if msg == nil || len(msg.Text) < 2 || msg.Text[0] != '/' {
		return ""
	}
	cmd, _, _ := strings.Cut(msg.Text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "\n")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}

// CallbackOrigin returns the chat and message a callback button was attached to.
func CallbackOrigin(q *models.CallbackQuery) (chatID int64, messageID int, ok bool) {
	switch {
	case q == nil:
		return 0, 0, false
	case q.Message.Message != nil:
		return q.Message.Message.Chat.ID, q.Message.Message.ID, true
	case q.Message.InaccessibleMessage != nil:
		return q.Message.InaccessibleMessage.Chat.ID, q.Message.InaccessibleMessage.MessageID, true
	}
	return 0, 0, false
}
