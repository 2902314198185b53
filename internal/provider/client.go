// Package provider delivers assistant replies back to the messaging
// provider's Graph-style send API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/chatforge/bridge-api/internal/bridge"
)

const (
	sendTimeout  = 10 * time.Second
	graphVersion = "v18.0"
	maxErrorBody = 512
)

// Client posts outbound messages. BaseURL is the Graph API origin without a
// trailing slash.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: sendTimeout},
	}
}

type sendRequest struct {
	Recipient     sendRecipient `json:"recipient"`
	Message       Reply         `json:"message"`
	MessagingType string        `json:"messaging_type"`
}

type sendRecipient struct {
	ID string `json:"id"`
}

// Send delivers one reply to recipientID over conn's platform. The page
// platform posts to me/messages under the page token; the photo platform
// addresses the linked account id directly.
func (c *Client) Send(ctx context.Context, conn *bridge.SocialConnection, recipientID string, reply Reply) error {
	// Platform() reports photo only when AccountID is set, so the deref is safe.
	endpoint := fmt.Sprintf("%s/%s/me/messages", c.BaseURL, graphVersion)
	if conn.Platform() == bridge.PlatformPhoto {
		endpoint = fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, graphVersion, *conn.AccountID)
	}

	body, err := json.Marshal(sendRequest{
		Recipient:     sendRecipient{ID: recipientID},
		Message:       reply,
		MessagingType: "RESPONSE",
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	reqURL := endpoint + "?access_token=" + url.QueryEscape(conn.AccessToken)
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// url.Error carries the full request URL; scrub the token before
		// the error can reach a log line.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactURL(ue.URL)
		}
		return fmt.Errorf("provider send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &bridge.StatusError{Status: resp.StatusCode, Body: string(snippet)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
