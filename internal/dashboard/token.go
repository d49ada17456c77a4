package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenPath issues bearer tokens for API clients.
const TokenPath = "/api/token"

// Grant is a bearer token issued by the server.
type Grant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges a username and password for a bearer token. On success the
// client keeps the token for later requests.
func (c *Client) Login(ctx context.Context, username, password string) (Grant, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return Grant{}, fmt.Errorf("encode credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+TokenPath, bytes.NewReader(payload))
	if err != nil {
		return Grant{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("request %s: %w", TokenPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Grant{}, fmt.Errorf("read %s: %w", TokenPath, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Grant{}, &APIError{StatusCode: resp.StatusCode, Path: TokenPath, Message: errorMessage(body)}
	}

	var g Grant
	if err := json.Unmarshal(body, &g); err != nil {
		return Grant{}, &DecodeError{Path: TokenPath, Err: err}
	}
	if g.Token == "" {
		return Grant{}, &DecodeError{Path: TokenPath, Err: fmt.Errorf("empty token")}
	}
	c.Token = g.Token
	return g, nil
}

// errorMessage extracts the "error" field of a JSON error body, falling back
// to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
