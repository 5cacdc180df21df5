package telegram

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// BuildPoller returns the long poller used outside webhook mode.
func BuildPoller(timeoutSeconds int) tele.Poller {
	timeout := defaultLongPollTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

// WebhookRegistration builds the setWebhook request for the public URL
// and path the webhook handler is mounted on.
func WebhookRegistration(publicURL, path, secret string) *tele.Webhook {
	endpoint := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if path != "" && path != "/" && !strings.HasSuffix(endpoint, path) {
		endpoint += "/" + strings.TrimLeft(path, "/")
	}
	return &tele.Webhook{
		Endpoint:       &tele.WebhookEndpoint{PublicURL: endpoint},
		SecretToken:    secret,
		AllowedUpdates: []string{"message", "callback_query"},
	}
}
