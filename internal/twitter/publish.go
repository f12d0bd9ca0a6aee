package twitter

import (
	"context"
	"errors"
	"regexp"

	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/storage"
)

// maxPublishAttempts is the first call plus one retry after a successful refresh
const maxPublishAttempts = 2

var shortURLPattern = regexp.MustCompile(`(?i)https?://[^",\s]+`)

// PublishResult is a created post. ShortURL is the first link found in the
// text echoed back by the provider, usually the provider-shortened form.
type PublishResult struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ShortURL string `json:"short_url,omitempty"`
}

// Publish posts text with the stored access token. A 401 triggers one
// refresh and, when it succeeds, one more attempt. Failures are logged and
// reported as false.
func (c *Client) Publish(ctx context.Context, text string) (*PublishResult, bool) {
	for attempt := 1; attempt <= maxPublishAttempts; attempt++ {
		access, err := storage.GetOrEmpty(ctx, c.provider.store, storage.KeyAccessToken)
		if err != nil {
			log.LogErrorWithFields("twitter", "Failed to read access token", map[string]any{
				"error": err.Error(),
			})
			break
		}

		if access == "" {
			err = ErrAuthExpired
		} else {
			var tweet *Tweet
			tweet, err = c.provider.postTweet(ctx, access, text)
			if err == nil {
				publishes.WithLabelValues("ok").Inc()
				log.LogInfoWithFields("twitter", "Published", map[string]any{
					"id":      tweet.ID,
					"attempt": attempt,
				})
				return &PublishResult{
					ID:       tweet.ID,
					Text:     tweet.Text,
					ShortURL: shortURLPattern.FindString(tweet.Text),
				}, true
			}
		}

		if !errors.Is(err, ErrAuthExpired) {
			log.LogErrorWithFields("twitter", "Publish failed", map[string]any{
				"error":   err.Error(),
				"attempt": attempt,
			})
			break
		}

		log.LogInfoWithFields("twitter", "Access token rejected", map[string]any{
			"attempt": attempt,
		})
		if attempt == maxPublishAttempts || !c.RefreshToken(ctx) {
			break
		}
	}

	publishes.WithLabelValues("failed").Inc()
	return nil, false
}
