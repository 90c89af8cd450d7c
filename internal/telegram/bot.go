package telegram

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/driftwatch/driftwatch/internal/admincache"
	"github.com/driftwatch/driftwatch/internal/detector"
	"github.com/driftwatch/driftwatch/internal/groups"
	"github.com/driftwatch/driftwatch/internal/handles"
	"github.com/driftwatch/driftwatch/internal/identity"
	"github.com/driftwatch/driftwatch/internal/logger"
)

// handleResolver maps an @handle back to its most recent owner.
type handleResolver interface {
	Owner(ctx context.Context, groupID int64, handle string) (int64, error)
}

// Bot drives the long-poll update loop, feeds observations to the detector,
// answers group commands, and delivers alerts back into the group.
type Bot struct {
	api         *tgbotapi.BotAPI
	detector    *detector.Service
	groups      *groups.Service
	records     *identity.Store
	registry    handleResolver
	admins      *admincache.Cache
	send        *rate.Limiter
	pollTimeout int
	logger      *slog.Logger
}

// New wires the bot around an authenticated API client. The detector is
// attached afterwards with SetDetector: it depends on the bot as its alert
// sink, so the two cannot be constructed in one step.
func New(log *slog.Logger, api *tgbotapi.BotAPI, groupConfigs *groups.Service, records *identity.Store, registry *handles.Registry, admins *admincache.Cache, pollTimeout int) *Bot {
	if log == nil {
		log = slog.Default()
	}
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	return &Bot{
		api:         api,
		groups:      groupConfigs,
		records:     records,
		registry:    registry,
		admins:      admins,
		send:        rate.NewLimiter(rate.Every(50*time.Millisecond), 5),
		pollTimeout: pollTimeout,
		logger:      log.With(slog.String("adapter", "telegram")),
	}
}

// SetDetector attaches the observation pipeline. Must be called before Run.
func (b *Bot) SetDetector(det *detector.Service) {
	b.detector = det
}

// Run consumes updates until ctx is cancelled. Each qualifying update is
// handled on its own goroutine so a slow photo fetch never stalls the poll
// loop.
func (b *Bot) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.pollTimeout
	updateConfig.AllowedUpdates = []string{"message", "edited_message", "chat_member"}
	updates := b.api.GetUpdatesChan(updateConfig)
	b.logger.Info("start", slog.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stop")
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				b.logger.Info("updates channel closed")
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// updateContext scopes the logger to one update so every log line emitted
// while handling it carries the update id.
func (b *Bot) updateContext(ctx context.Context, update tgbotapi.Update) context.Context {
	return logger.WithContext(ctx, b.logger.With(slog.Int("update_id", update.UpdateID)))
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx = b.updateContext(ctx, update)
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.EditedMessage != nil:
		b.observeMessage(ctx, update.EditedMessage)
	case update.ChatMember != nil:
		b.handleChatMember(ctx, update.ChatMember)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.observeMessage(ctx, msg)
}

// observeMessage turns a group message into one identity observation of its
// sender. Private chats and anonymous senders carry no identity to track.
func (b *Bot) observeMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !(msg.Chat.IsGroup() || msg.Chat.IsSuperGroup()) {
		return
	}
	if msg.From == nil || msg.From.IsBot {
		return
	}
	b.observe(ctx, detector.Observation{
		GroupID:     msg.Chat.ID,
		UserID:      msg.From.ID,
		DisplayName: displayName(msg.From),
		Handle:      msg.From.UserName,
	})
}

// handleChatMember observes membership transitions, catching identity drift
// from users who join, leave, or are promoted without posting.
func (b *Bot) handleChatMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	if !(upd.Chat.IsGroup() || upd.Chat.IsSuperGroup()) {
		return
	}
	user := upd.NewChatMember.User
	if user == nil || user.IsBot {
		return
	}
	b.observe(ctx, detector.Observation{
		GroupID:     upd.Chat.ID,
		UserID:      user.ID,
		DisplayName: displayName(user),
		Handle:      user.UserName,
	})
}

func (b *Bot) observe(ctx context.Context, obs detector.Observation) {
	if _, err := b.detector.Observe(ctx, obs); err != nil {
		logger.FromContext(ctx).Error("observe failed",
			slog.Int64("group_id", obs.GroupID),
			slog.Int64("user_id", obs.UserID),
			slog.Any("error", err),
		)
	}
}

// Dispatch renders an alert and posts it to the group. Implements the
// detector's alert boundary.
func (b *Bot) Dispatch(ctx context.Context, alert detector.Alert) error {
	return b.sendHTML(ctx, alert.GroupID, 0, renderAlert(alert))
}

func (b *Bot) sendHTML(ctx context.Context, chatID int64, replyTo int, text string) error {
	if err := b.send.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if replyTo > 0 {
		msg.ReplyToMessageID = replyTo
	}
	_, err := b.api.Send(msg)
	return err
}
