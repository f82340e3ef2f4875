package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vantage-kit/vantage/internal/shared"
)

// Client implements Authenticator over the HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient constructs a Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: http.DefaultClient}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Login posts credentials and returns the hydration profile.
func (c *Client) Login(ctx context.Context, creds Credentials) (Profile, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return Profile{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.profileResponse(req)
}

// FetchMe re-fetches the current-user profile for refresh.
func (c *Client) FetchMe(ctx context.Context, token string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/user", nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.profileResponse(req)
}

// Logout revokes the token server-side.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return classifyStatus(res.StatusCode)
}

func (c *Client) profileResponse(req *http.Request) (Profile, error) {
	res, err := c.httpClient().Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer res.Body.Close()
	if err := classifyStatus(res.StatusCode); err != nil {
		return Profile{}, err
	}
	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return Profile{}, err
	}
	var profile Profile
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// classifyStatus maps boundary statuses back onto the shared error taxonomy
// so the manager's refresh policy can tell rejection from transient failure.
func classifyStatus(status int) error {
	switch {
	case status < http.StatusBadRequest:
		return nil
	case status == http.StatusUnauthorized:
		return shared.ErrAuthenticationFailed
	case status == http.StatusLocked:
		return shared.ErrAccountSuspended
	default:
		return fmt.Errorf("session: unexpected status %d", status)
	}
}
