// Package notifier delivers item notifications to a Telegram chat.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ylqcxwl/youtube-notifier/internal/config"
	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

// ErrNoCredentials is returned by Send when Telegram credentials are not
// configured and the fail policy is active.
var ErrNoCredentials = errors.New("telegram credentials not configured")

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// chat is the destination of notifications: a numeric chat id or a
// public channel username.
type chat struct {
	id       int64
	username string
}

func parseChat(raw string) chat {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return chat{id: id}
	}
	if !strings.HasPrefix(raw, "@") {
		raw = "@" + raw
	}
	return chat{username: raw}
}

// Notifier formats items and posts them to Telegram.
type Notifier struct {
	api    telegramAPI
	chat   chat
	policy config.CredentialPolicy
	limit  int
	loc    *time.Location
	log    *slog.Logger
}

// New creates a Notifier from cfg. Requests go through client, whose
// timeout bounds every delivery. Without credentials the Notifier follows
// cfg.OnMissingCredentials.
func New(cfg *config.Config, client *http.Client, log *slog.Logger) *Notifier {
	return newWithEndpoint(cfg, client, tgbotapi.APIEndpoint, log)
}

func newWithEndpoint(cfg *config.Config, client *http.Client, endpoint string, log *slog.Logger) *Notifier {
	var api telegramAPI
	if cfg.HasCredentials() {
		// Built directly so that startup does not depend on a getMe round trip.
		bot := &tgbotapi.BotAPI{Token: cfg.TelegramToken, Client: client, Buffer: 100}
		bot.SetAPIEndpoint(endpoint)
		api = bot
	}
	return newWithAPI(api, cfg, log)
}

func newWithAPI(api telegramAPI, cfg *config.Config, log *slog.Logger) *Notifier {
	return &Notifier{
		api:    api,
		chat:   parseChat(cfg.TelegramChatID),
		policy: cfg.OnMissingCredentials,
		limit:  cfg.DescriptionLimit,
		loc:    cfg.Location(),
		log:    log,
	}
}

// maxCaptionLength is Telegram's limit for photo captions. Longer
// notifications go out as text messages without the thumbnail.
const maxCaptionLength = 1024

// Enabled reports whether credentials are configured.
func (n *Notifier) Enabled() bool {
	return n.api != nil
}

// Send delivers a notification for item. A nil error means the message was
// accepted by Telegram, or skipped under the skip credential policy.
func (n *Notifier) Send(ctx context.Context, item model.Item, sourceName string) error {
	if n.api == nil {
		if n.policy == config.CredentialsSkip {
			n.log.Debug("telegram not configured, skipping", "item", item.ID)
			return nil
		}
		return ErrNoCredentials
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text := FormatNotification(item, sourceName, n.limit, n.loc)

	if item.ThumbnailURL != "" && utf8.RuneCountInString(text) <= maxCaptionLength {
		photo := tgbotapi.NewPhoto(n.chat.id, tgbotapi.FileURL(item.ThumbnailURL))
		photo.ChannelUsername = n.chat.username
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeMarkdownV2
		if _, err := n.api.Send(photo); err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
		n.log.Debug("photo sent", "item", item.ID)
		return nil
	}

	msg := tgbotapi.NewMessage(n.chat.id, text)
	msg.ChannelUsername = n.chat.username
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	n.log.Debug("message sent", "item", item.ID)
	return nil
}
