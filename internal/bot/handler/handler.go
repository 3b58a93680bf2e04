// Package handler turns Telegram updates into preference, issuance, and status actions
// and replies in the principal's language.
package handler

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"trial-access-bot/internal/access/service"
	"trial-access-bot/internal/audit"
	"trial-access-bot/internal/i18n"
	"trial-access-bot/internal/preference"
	"trial-access-bot/internal/principal/domain"
	"trial-access-bot/internal/telegram"
	"trial-access-bot/internal/telemetry"
)

// CallbackPrefix prefixes the callback data of locale selection buttons.
const CallbackPrefix = "language_"

// Messenger is the part of the Bot API the handler replies through.
type Messenger interface {
	SendMessage(ctx context.Context, chatID string, text string, markup *models.InlineKeyboardMarkup) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
	EditMessageText(ctx context.Context, chatID string, messageID int, text string) error
}

// Access issues credentials and reports status.
type Access interface {
	Issue(ctx context.Context, principalID int64) (*service.Issued, error)
	Status(ctx context.Context, principalID int64) (service.Status, error)
}

// Gate is the preference state machine.
type Gate interface {
	Begin(ctx context.Context, key preference.Key, requestChange bool) (preference.Decision, error)
	Select(ctx context.Context, key preference.Key, locale string) error
}

// Records reads a principal's stored preference.
type Records interface {
	Get(ctx context.Context, principalID int64) (*domain.Record, error)
}

// Catalog renders localized replies and the preference prompt.
type Catalog interface {
	Text(locale, key string, args ...any) string
	Parse(raw string) (string, bool)
	Selectable() []*i18n.Locale
	PreferencePrompt() string
	Default() string
}

// Handler implements telegram.Handler.
type Handler struct {
	messenger Messenger
	access    Access
	gate      Gate
	records   Records
	catalog   Catalog
	audit     audit.AuditLogger
	emitter   telemetry.EventEmitter
	now       func() time.Time
}

// New returns a Handler. auditLogger and emitter may be nil.
func New(messenger Messenger, access Access, gate Gate, records Records, catalog Catalog, auditLogger audit.AuditLogger, emitter telemetry.EventEmitter) *Handler {
	return &Handler{
		messenger: messenger,
		access:    access,
		gate:      gate,
		records:   records,
		catalog:   catalog,
		audit:     auditLogger,
		emitter:   emitter,
		now:       time.Now,
	}
}

// HandleUpdate routes one update. Errors are reported to the principal and logged, never returned.
func (h *Handler) HandleUpdate(ctx context.Context, u *models.Update) {
	switch {
	case u == nil:
	case u.CallbackQuery != nil:
		h.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil:
		h.handleCommand(ctx, u.Message)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *models.Message) {
	principalID := msg.From.ID
	key := preference.Key{PrincipalID: principalID, SessionID: msg.Chat.ID}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	switch telegram.Command(msg) {
	case "start":
		decision, err := h.gate.Begin(ctx, key, false)
		if err != nil {
			log.Printf("bot: begin for principal %d: %v", principalID, err)
			h.send(ctx, chatID, h.catalog.Text(h.catalog.Default(), i18n.KeyInternalError), nil)
			return
		}
		if decision == preference.DecisionPrompt {
			h.sendPrompt(ctx, chatID)
			return
		}
		h.issue(ctx, chatID, principalID)
	case "language":
		if _, err := h.gate.Begin(ctx, key, true); err != nil {
			log.Printf("bot: begin change for principal %d: %v", principalID, err)
			return
		}
		h.sendPrompt(ctx, chatID)
	case "status":
		h.status(ctx, chatID, principalID)
	case "help":
		h.send(ctx, chatID, h.catalog.Text(h.localeOf(ctx, principalID), i18n.KeyHelpMessage), nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, q *models.CallbackQuery) {
	if err := h.messenger.AnswerCallbackQuery(ctx, q.ID, ""); err != nil {
		log.Printf("bot: answer callback %s: %v", q.ID, err)
	}
	raw, ok := strings.CutPrefix(q.Data, CallbackPrefix)
	if !ok {
		return
	}
	origin, messageID, ok := telegram.CallbackOrigin(q)
	if !ok {
		return
	}
	principalID := q.From.ID
	key := preference.Key{PrincipalID: principalID, SessionID: origin}
	chatID := strconv.FormatInt(origin, 10)

	locale, ok := h.catalog.Parse(raw)
	if !ok {
		h.send(ctx, chatID, h.catalog.Text(h.localeOf(ctx, principalID), i18n.KeyUnsupportedLocale), nil)
		return
	}
	if err := h.gate.Select(ctx, key, locale); err != nil {
		if errors.Is(err, preference.ErrUnsupportedLocale) {
			h.send(ctx, chatID, h.catalog.Text(h.localeOf(ctx, principalID), i18n.KeyUnsupportedLocale), nil)
			return
		}
		log.Printf("bot: select locale for principal %d: %v", principalID, err)
		h.send(ctx, chatID, h.catalog.Text(h.localeOf(ctx, principalID), i18n.KeyInternalError), nil)
		return
	}
	if h.audit != nil {
		h.audit.LogEvent(ctx, principalID, audit.ActionPreferenceSet, locale)
	}
	telemetry.EmitAsync(h.emitter, ctx, telemetry.NewLifecycleEvent(telemetry.EventPreferenceSet, principalID, map[string]string{"locale": locale}))

	text := h.catalog.Text(locale, i18n.KeyLanguageSet)
	if err := h.messenger.EditMessageText(ctx, chatID, messageID, text); err != nil {
		log.Printf("bot: edit prompt in chat %s: %v", chatID, err)
		h.send(ctx, chatID, text, nil)
	}
}

func (h *Handler) issue(ctx context.Context, chatID string, principalID int64) {
	locale := h.localeOf(ctx, principalID)
	issued, err := h.access.Issue(ctx, principalID)
	if err != nil {
		h.send(ctx, chatID, h.catalog.Text(locale, issueErrorKey(principalID, err)), nil)
		return
	}
	minutes := int(issued.ExpiresAt.Sub(issued.IssuedAt) / time.Minute)
	if issued.Reused {
		minutes = int(issued.ExpiresAt.Sub(h.now()) / time.Minute)
	}
	h.send(ctx, chatID, h.catalog.Text(locale, i18n.KeyLinkMessage, issued.InviteLink, minutes), nil)
}

func issueErrorKey(principalID int64, err error) string {
	switch {
	case errors.Is(err, service.ErrTrialAlreadyUsed):
		return i18n.KeyTrialUsed
	case errors.Is(err, service.ErrIssuanceFailed):
		log.Printf("bot: issue for principal %d: %v", principalID, err)
		return i18n.KeyIssuanceFailed
	default:
		log.Printf("bot: issue for principal %d: %v", principalID, err)
		return i18n.KeyInternalError
	}
}

func (h *Handler) status(ctx context.Context, chatID string, principalID int64) {
	locale := h.localeOf(ctx, principalID)
	st, err := h.access.Status(ctx, principalID)
	if err != nil {
		log.Printf("bot: status for principal %d: %v", principalID, err)
		h.send(ctx, chatID, h.catalog.Text(locale, i18n.KeyInternalError), nil)
		return
	}
	var text string
	switch st.Kind {
	case service.StatusActive:
		text = h.catalog.Text(locale, i18n.KeyStatusActive, st.InviteLink, st.MinutesRemaining)
	case service.StatusExpired:
		text = h.catalog.Text(locale, i18n.KeyStatusExpired)
	default:
		text = h.catalog.Text(locale, i18n.KeyStatusNone)
	}
	h.send(ctx, chatID, text, nil)
}

func (h *Handler) sendPrompt(ctx context.Context, chatID string) {
	var rows [][]models.InlineKeyboardButton
	for _, loc := range h.catalog.Selectable() {
		rows = append(rows, []models.InlineKeyboardButton{{Text: loc.Name, CallbackData: CallbackPrefix + loc.Code}})
	}
	h.send(ctx, chatID, h.catalog.PreferencePrompt(), &models.InlineKeyboardMarkup{InlineKeyboard: rows})
}

// localeOf returns the principal's stored locale, or the default when unknown or unreadable.
func (h *Handler) localeOf(ctx context.Context, principalID int64) string {
	rec, err := h.records.Get(ctx, principalID)
	if err != nil {
		log.Printf("bot: load locale for principal %d: %v", principalID, err)
	}
	return rec.LocaleOr(h.catalog.Default())
}

func (h *Handler) send(ctx context.Context, chatID, text string, markup *models.InlineKeyboardMarkup) {
	if _, err := h.messenger.SendMessage(ctx, chatID, text, markup); err != nil {
		log.Printf("bot: send to chat %s: %v", chatID, err)
	}
}

var _ telegram.Handler = (*Handler)(nil)
