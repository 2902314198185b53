// Package ai calls the conversational AI runtime and decodes its
// heterogeneous response records into a typed form the pipeline can use.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

const (
	interactTimeout = 15 * time.Second
	maxErrorBody    = 512
)

// Client talks to the AI runtime. DefaultAPIKey is used when the tenant's
// binding does not carry its own key.
type Client struct {
	BaseURL       string
	DefaultAPIKey string
	HTTP          *http.Client
}

func NewClient(baseURL, defaultAPIKey string) *Client {
	return &Client{
		BaseURL:       baseURL,
		DefaultAPIKey: defaultAPIKey,
		HTTP:          &http.Client{Timeout: interactTimeout},
	}
}

type interactRequest struct {
	Action interactAction `json:"action"`
	Config interactConfig `json:"config"`
	State  interactState  `json:"state"`
}

type interactAction struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

type interactConfig struct {
	TTS       bool `json:"tts"`
	StripSSML bool `json:"stripSSML"`
}

type interactState struct {
	Variables map[string]any `json:"variables"`
}

// Interact sends one user turn to the runtime and returns its response
// records. apiKey overrides the default when non-empty. variables is the
// flattened session context (history excluded).
func (c *Client) Interact(ctx context.Context, tenantID uuid.UUID, apiKey, text string, variables map[string]any) ([]ResponseItem, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	body, err := json.Marshal(interactRequest{
		Action: interactAction{Type: "text", Payload: text},
		Config: interactConfig{TTS: false, StripSSML: true},
		State:  interactState{Variables: variables},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal interact request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/state/user/%s/interact", c.BaseURL, tenantID)
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	key := apiKey
	if key == "" {
		key = c.DefaultAPIKey
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai runtime request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &bridge.StatusError{Status: resp.StatusCode, Body: string(snippet)}
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode ai runtime response: %w", err)
	}
	return decodeItems(raw), nil
}
