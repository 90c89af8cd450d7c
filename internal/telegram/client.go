// Package telegram is the platform boundary: it turns bot updates into
// identity observations, serves the admin-list and profile-photo sources,
// renders alerts, and answers group commands.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/driftwatch/driftwatch/internal/admincache"
)

// profile photos are small; anything larger is not a photo we want
const maxPhotoBytes = 5 << 20

// Client wraps the bot API for the fetch paths the cache and detector need:
// listing group administrators and downloading profile photos. All fetches
// are bounded by the configured timeout.
type Client struct {
	api     *tgbotapi.BotAPI
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates the fetch client. fetchTimeout bounds every admin-list
// and photo request.
func NewClient(log *slog.Logger, api *tgbotapi.BotAPI, fetchTimeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		api:     api,
		http:    &http.Client{Timeout: fetchTimeout},
		timeout: fetchTimeout,
		logger:  log.With(slog.String("adapter", "telegram")),
	}
}

// ListAdmins returns the human administrators of the group.
func (c *Client) ListAdmins(ctx context.Context, groupID int64) ([]admincache.AdminProfile, error) {
	members, err := c.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: groupID},
	})
	if err != nil {
		return nil, fmt.Errorf("get chat administrators: %w", err)
	}
	profiles := make([]admincache.AdminProfile, 0, len(members))
	for _, m := range members {
		if m.User == nil || m.User.IsBot {
			continue
		}
		profiles = append(profiles, admincache.AdminProfile{
			UserID:      m.User.ID,
			DisplayName: displayName(m.User),
			Handle:      strings.TrimSpace(m.User.UserName),
		})
	}
	return profiles, nil
}

// FetchPhoto downloads the user's current profile photo, preferring the
// largest available size. Returns nil bytes when the user has none.
func (c *Client) FetchPhoto(ctx context.Context, userID int64) ([]byte, error) {
	photos, err := c.api.GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig{
		UserID: userID,
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("get user profile photos: %w", err)
	}
	if photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return nil, nil
	}
	best := pickPhotoSize(photos.Photos[0])
	url, err := c.api.GetFileDirectURL(best.FileID)
	if err != nil {
		return nil, fmt.Errorf("resolve photo url: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build photo request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, fmt.Errorf("read photo body: %w", err)
	}
	return data, nil
}

func pickPhotoSize(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}
