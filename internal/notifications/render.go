package notifications

import (
	"html"
	"strings"

	"forumgram-bridge/internal/config"
	"forumgram-bridge/internal/locales"

	"github.com/nicksnyder/go-i18n/v2/i18n"
)

const genericMessageID = "MsgNotificationGeneric"

// Render produces the HTML text of a notification. Every user supplied value
// is escaped; URLs are built from the configured base URL.
func Render(localizer *i18n.Localizer, settings *config.Settings, ev Event, userURL string) string {
	postURL := ev.PostURL
	if !strings.HasPrefix(postURL, "http://") && !strings.HasPrefix(postURL, "https://") {
		postURL = settings.BaseURL + "/" + strings.TrimLeft(postURL, "/")
	}

	data := map[string]interface{}{
		"SiteTitle":   html.EscapeString(settings.SiteTitle),
		"SiteURL":     html.EscapeString(settings.BaseURL),
		"PostURL":     html.EscapeString(postURL),
		"PostExcerpt": html.EscapeString(ev.Excerpt),
		"Topic":       html.EscapeString(ev.TopicTitle),
		"Username":    html.EscapeString(ev.Username),
		"UserURL":     html.EscapeString(userURL),
	}

	msgID := "MsgNotification_" + ev.NotificationType.Name()
	if !locales.HasMessage(localizer, msgID) {
		msgID = genericMessageID
	}
	return locales.GetMessage(localizer, msgID, data, nil)
}
