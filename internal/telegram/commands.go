package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/driftwatch/driftwatch/internal/groups"
	"github.com/driftwatch/driftwatch/internal/handles"
	"github.com/driftwatch/driftwatch/internal/identity"
	"github.com/driftwatch/driftwatch/internal/logger"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	inGroup := msg.Chat.IsGroup() || msg.Chat.IsSuperGroup()

	switch command {
	case "start":
		b.cmdStart(ctx, msg, inGroup)
		return
	case "help":
		b.replyHTML(ctx, msg, helpText)
		return
	}
	if !inGroup {
		return
	}

	switch command {
	case "settings":
		b.cmdSettings(ctx, msg)
	case "toggle":
		b.adminOnly(ctx, msg, b.cmdToggle)
	case "threshold":
		b.adminOnly(ctx, msg, b.cmdThreshold)
	case "photo":
		b.adminOnly(ctx, msg, b.cmdPhoto)
	case "cooldown":
		b.adminOnly(ctx, msg, b.cmdCooldown)
	case "refresh_admins":
		b.adminOnly(ctx, msg, b.cmdRefreshAdmins)
	case "history":
		b.cmdHistory(ctx, msg)
	case "whois":
		b.cmdWhois(ctx, msg)
	}
}

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message, inGroup bool) {
	if !inGroup {
		b.replyHTML(ctx, msg, "Hi! Add me to a group and make me an admin so I can watch for name/handle/photo changes.\nSend /help for the command list.")
		return
	}
	if _, err := b.groups.Ensure(ctx, msg.Chat.ID); err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	b.admins.Invalidate(msg.Chat.ID)
	b.replyHTML(ctx, msg, "Ready! I am watching identity changes in this group.\nSend /help for the command list.")
}

func (b *Bot) cmdSettings(ctx context.Context, msg *tgbotapi.Message) {
	cfg, err := b.groups.Ensure(ctx, msg.Chat.ID)
	if err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	b.replyHTML(ctx, msg, renderSettings(msg.Chat.Title, cfg))
}

func (b *Bot) cmdToggle(ctx context.Context, msg *tgbotapi.Message) {
	cfg, err := b.groups.Ensure(ctx, msg.Chat.ID)
	if err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	cfg, err = b.groups.SetEnabled(ctx, msg.Chat.ID, !cfg.Enabled)
	if err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	state := "OFF"
	if cfg.Enabled {
		state = "ON"
	}
	b.replyHTML(ctx, msg, "Alerts: "+state)
}

func (b *Bot) cmdThreshold(ctx context.Context, msg *tgbotapi.Message) {
	value, err := strconv.ParseFloat(firstArg(msg), 64)
	if err != nil {
		b.replyHTML(ctx, msg, "Use a value between 0.70 and 0.98. Example: /threshold 0.85")
		return
	}
	cfg, err := b.groups.SetNameThreshold(ctx, msg.Chat.ID, value)
	if errors.Is(err, groups.ErrThresholdRange) {
		b.replyHTML(ctx, msg, "Use a value between 0.70 and 0.98. Example: /threshold 0.85")
		return
	}
	if err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	b.replyHTML(ctx, msg, fmt.Sprintf("Admin name similarity threshold set to %.2f", cfg.NameThreshold))
}

func (b *Bot) cmdPhoto(ctx context.Context, msg *tgbotapi.Message) {
	arg := strings.ToLower(firstArg(msg))
	if arg != "on" && arg != "off" {
		b.replyHTML(ctx, msg, "Use: /photo on  or  /photo off")
		return
	}
	cfg, err := b.groups.SetCheckPhoto(ctx, msg.Chat.ID, arg == "on")
	if err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	state := "OFF"
	if cfg.CheckPhoto {
		state = "ON"
	}
	b.replyHTML(ctx, msg, "Profile photo checks: "+state+"\n(send /refresh_admins to refresh admin photo fingerprints)")
}

func (b *Bot) cmdCooldown(ctx context.Context, msg *tgbotapi.Message) {
	seconds, err := strconv.Atoi(firstArg(msg))
	if err != nil {
		b.replyHTML(ctx, msg, "Use: /cooldown <seconds>  (min 5)")
		return
	}
	cfg, err := b.groups.SetCooldown(ctx, msg.Chat.ID, seconds)
	if errors.Is(err, groups.ErrCooldownRange) {
		b.replyHTML(ctx, msg, "Use: /cooldown <seconds>  (min 5)")
		return
	}
	if err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	b.replyHTML(ctx, msg, fmt.Sprintf("Per-user alert cooldown set to %d seconds.", cfg.CooldownSeconds))
}

func (b *Bot) cmdRefreshAdmins(ctx context.Context, msg *tgbotapi.Message) {
	b.admins.Invalidate(msg.Chat.ID)
	entries, err := b.admins.Entries(ctx, msg.Chat.ID)
	if err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	b.replyHTML(ctx, msg, fmt.Sprintf("Admin list refreshed (%d entries). Photo fingerprints are computed on demand.", len(entries)))
}

func (b *Bot) cmdHistory(ctx context.Context, msg *tgbotapi.Message) {
	userID, err := b.resolveTarget(ctx, msg)
	if err != nil {
		b.replyHTML(ctx, msg, "Reply to the user's message or use: /history @handle | /history <user_id>")
		return
	}
	rec, err := b.records.Get(ctx, msg.Chat.ID, userID)
	if errors.Is(err, identity.ErrRecordNotFound) {
		b.replyHTML(ctx, msg, "No record for this user yet.")
		return
	}
	if err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	b.replyHTML(ctx, msg, renderHistory(rec))
}

func (b *Bot) cmdWhois(ctx context.Context, msg *tgbotapi.Message) {
	userID, err := b.resolveTarget(ctx, msg)
	if err != nil {
		b.replyHTML(ctx, msg, "Use: /whois @handle | /whois <user_id> or reply to the user's message.")
		return
	}
	rec, err := b.records.Get(ctx, msg.Chat.ID, userID)
	if errors.Is(err, identity.ErrRecordNotFound) {
		b.replyHTML(ctx, msg, "No data for this user yet.")
		return
	}
	if err != nil {
		b.commandError(ctx, msg, err)
		return
	}
	b.replyHTML(ctx, msg, renderWhois(rec))
}

// resolveTarget picks the command's subject: the replied-to user, a numeric
// user id argument, or an @handle resolved through the handle registry.
func (b *Bot) resolveTarget(ctx context.Context, msg *tgbotapi.Message) (int64, error) {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return msg.ReplyToMessage.From.ID, nil
	}
	arg := firstArg(msg)
	if arg == "" {
		return 0, errors.New("no target")
	}
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return id, nil
	}
	if strings.HasPrefix(arg, "@") {
		owner, err := b.registry.Owner(ctx, msg.Chat.ID, arg)
		if errors.Is(err, handles.ErrHandleUnknown) {
			return 0, err
		}
		return owner, err
	}
	return 0, errors.New("unrecognized target")
}

// adminOnly runs fn only when the sender is a group administrator; settings
// mutations from regular members are silently refused.
func (b *Bot) adminOnly(ctx context.Context, msg *tgbotapi.Message, fn func(context.Context, *tgbotapi.Message)) {
	if msg.From == nil {
		return
	}
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: msg.Chat.ID,
			UserID: msg.From.ID,
		},
	})
	if err != nil {
		b.logger.Warn("get chat member failed",
			slog.Int64("group_id", msg.Chat.ID),
			slog.Int64("user_id", msg.From.ID),
			slog.Any("error", err),
		)
		return
	}
	if !member.IsCreator() && !member.IsAdministrator() {
		b.replyHTML(ctx, msg, "Only group admins can change these settings.")
		return
	}
	fn(ctx, msg)
}

func (b *Bot) replyHTML(ctx context.Context, msg *tgbotapi.Message, text string) {
	if err := b.sendHTML(ctx, msg.Chat.ID, msg.MessageID, text); err != nil {
		logger.FromContext(ctx).Error("reply failed", slog.Int64("group_id", msg.Chat.ID), slog.Any("error", err))
	}
}

func (b *Bot) commandError(ctx context.Context, msg *tgbotapi.Message, err error) {
	logger.FromContext(ctx).Error("command failed",
		slog.String("command", msg.Command()),
		slog.Int64("group_id", msg.Chat.ID),
		slog.Any("error", err),
	)
	b.replyHTML(ctx, msg, "Something went wrong, try again later.")
}

func firstArg(msg *tgbotapi.Message) string {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
