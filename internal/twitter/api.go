package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// User is the authenticated account as returned by /2/users/me
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type userResponse struct {
	Data User `json:"data"`
}

// Tweet is a created post
type Tweet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type tweetResponse struct {
	Data Tweet `json:"data"`
}

// FetchUser returns the account that owns accessToken
func (p *Provider) FetchUser(ctx context.Context, accessToken string) (*User, error) {
	var resp userResponse
	if err := p.call(ctx, "fetch user", http.MethodGet, UserPath, accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (p *Provider) postTweet(ctx context.Context, accessToken, text string) (*Tweet, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encoding tweet: %w", err)
	}

	var resp tweetResponse
	if err := p.call(ctx, "publish", http.MethodPost, TweetPath, accessToken, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// apiClient sends requests with accessToken as the bearer. The static source
// never refreshes; refreshing is Client.RefreshToken's job.
func (p *Provider) apiClient(ctx context.Context, accessToken string) *http.Client {
	client := oauth2.NewClient(p.oauthContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = p.httpClient.Timeout
	return client
}

// call performs one bearer-authenticated JSON request against the API base URL
func (p *Provider) call(ctx context.Context, op, method, path, accessToken string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.apiBase+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := p.apiClient(ctx, accessToken).Do(req)
	if err != nil {
		providerRequestDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	providerRequestDuration.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(op, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}
