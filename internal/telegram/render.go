package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/driftwatch/driftwatch/internal/detector"
	"github.com/driftwatch/driftwatch/internal/groups"
	"github.com/driftwatch/driftwatch/internal/identity"
)

const helpText = `Admin commands (run inside the group):
• /settings – show the group configuration
• /toggle – turn alerts on or off
• /threshold 0.85 – set the admin name similarity threshold (0.70–0.98)
• /photo on|off – enable or disable profile photo checks
• /cooldown &lt;seconds&gt; – per-user anti-spam delay between alerts (min 5)
• /refresh_admins – reload the admin list
• /history @user (or reply to a message) – name/handle/photo history
• /whois @user|&lt;id&gt; – short profile from the bot's records`

// renderAlert builds the HTML alert message: subject line, one line per
// change, impersonation annotations, and the history hint.
func renderAlert(a detector.Alert) string {
	var lines []string

	subject := fmt.Sprintf("👤 <b>%s</b> <code>%d</code>", escapeOr(a.DisplayName, "(no name)"), a.UserID)
	if a.Handle != "" {
		subject += " @" + html.EscapeString(a.Handle)
	}
	lines = append(lines, subject)

	for _, c := range a.Changes {
		switch c.Kind {
		case identity.ChangeName:
			lines = append(lines, fmt.Sprintf("📝 <b>Name</b>: <code>%s</code> → <b>%s</b>",
				escapeOr(c.From, "-"), html.EscapeString(c.To)))
		case identity.ChangeHandle:
			lines = append(lines, fmt.Sprintf("🔗 <b>Handle</b>: <code>%s</code> → <b>%s</b>",
				escapeHandle(c.From), escapeHandle(c.To)))
		case identity.ChangePhoto:
			line := "🖼️ <b>Profile photo</b> changed"
			if c.Distance != nil {
				line += fmt.Sprintf(" (Δ=%d)", *c.Distance)
			}
			lines = append(lines, line)
		}
	}

	if hit, ok := bestHit(a.Hits, detector.HitHandle); ok {
		lines = append(lines, "", fmt.Sprintf("🚨 <b>Warning:</b> handle identical to admin @%s!", html.EscapeString(hit.AdminHandle)))
	} else if hit, ok := bestHit(a.Hits, detector.HitName); ok {
		lines = append(lines, "", fmt.Sprintf("⚠️ <b>Name similar to admin</b> %s (score ≈ <b>%.2f</b>)",
			escapeOr(hit.AdminName, "-"), hit.Score))
	}
	if hit, ok := bestHit(a.Hits, detector.HitPhoto); ok {
		lines = append(lines, fmt.Sprintf("🛑 <b>Photo similar to admin</b> %s (Δ=%d)",
			escapeOr(hit.AdminName, "-"), hit.Distance))
	}
	if a.Reassignment != nil {
		lines = append(lines, "",
			"🔁 <b>Handle moved to another account</b>",
			fmt.Sprintf("• Handle: <b>@%s</b>", html.EscapeString(a.Reassignment.Handle)),
			fmt.Sprintf("• Previously owned by: <code>%d</code>", a.Reassignment.PreviousOwner),
			fmt.Sprintf("• Now used by: <code>%d</code>", a.Reassignment.NewOwner),
		)
	}

	lines = append(lines, "", fmt.Sprintf("🕒 %s", a.At.Format("2006-01-02 15:04:05 MST")))
	lines = append(lines, "ℹ️ Reply to the user and send /history to see their name/handle/photo record.")
	return strings.Join(lines, "\n")
}

func renderSettings(title string, cfg groups.GroupConfig) string {
	status := "OFF"
	if cfg.Enabled {
		status = "ON"
	}
	photo := "OFF"
	if cfg.CheckPhoto {
		photo = "ON"
	}
	return strings.Join([]string{
		fmt.Sprintf("Settings for <b>%s</b>:", escapeOr(title, "this group")),
		fmt.Sprintf("• alerts: <b>%s</b>", status),
		fmt.Sprintf("• name_threshold: <b>%.2f</b>", cfg.NameThreshold),
		fmt.Sprintf("• check_photo: <b>%s</b>", photo),
		fmt.Sprintf("• cooldown: <b>%ds</b>", cfg.CooldownSeconds),
		fmt.Sprintf("• photo_distance: <b>%d</b> (Δ≤%d counts as similar)", cfg.PhotoDistance, cfg.PhotoDistance),
	}, "\n")
}

func renderHistory(rec identity.Record) string {
	lines := []string{
		fmt.Sprintf("👤 <b>%s</b> <code>%d</code>%s",
			escapeOr(rec.DisplayName, "-"), rec.UserID, handleSuffix(rec.Handle)),
		"• First seen: " + rec.FirstSeen.Format("2006-01-02 15:04:05 MST"),
		"• Last seen: " + rec.LastSeen.Format("2006-01-02 15:04:05 MST"),
	}
	if len(rec.Names) > 0 {
		lines = append(lines, fmt.Sprintf("• Names (%d): %s", len(rec.Names), codeList(rec.Names, "")))
	}
	if len(rec.Handles) > 0 {
		lines = append(lines, fmt.Sprintf("• Handles (%d): %s", len(rec.Handles), codeList(rec.Handles, "@")))
	}
	if len(rec.PhotoHashes) > 0 {
		lines = append(lines, fmt.Sprintf("• Photos (%d) pHash: %s", len(rec.PhotoHashes), codeList(truncateAll(rec.PhotoHashes, 10), "")))
	}
	return strings.Join(lines, "\n")
}

func renderWhois(rec identity.Record) string {
	handle := "-"
	if rec.Handle != "" {
		handle = "@" + html.EscapeString(rec.Handle)
	}
	photo := "-"
	if rec.PhotoHash != "" {
		photo = html.EscapeString(rec.PhotoHash)
	}
	return strings.Join([]string{
		fmt.Sprintf("👤 <code>%d</code>", rec.UserID),
		fmt.Sprintf("• Last name: <b>%s</b>", escapeOr(rec.DisplayName, "-")),
		"• Handle: " + handle,
		"• Photo pHash: " + photo,
	}, "\n")
}

func bestHit(hits []detector.Hit, kind detector.HitKind) (detector.Hit, bool) {
	for _, h := range hits {
		if h.Kind == kind {
			return h, true
		}
	}
	return detector.Hit{}, false
}

func escapeOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return html.EscapeString(s)
}

func escapeHandle(s string) string {
	if s == "" {
		return "-"
	}
	return "@" + html.EscapeString(s)
}

func handleSuffix(handle string) string {
	if handle == "" {
		return ""
	}
	return " (@" + html.EscapeString(handle) + ")"
}

func codeList(items []string, prefix string) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, "<code>"+prefix+html.EscapeString(item)+"</code>")
	}
	return strings.Join(parts, ", ")
}

func truncateAll(items []string, n int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if len(item) > n {
			item = item[:n] + "…"
		}
		out = append(out, item)
	}
	return out
}
