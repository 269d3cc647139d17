// Package emqx provisions MQTT users through the EMQX management API.
package emqx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrUserExists = errors.New("emqx user already exists")

type EmqxClient struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
}

// New builds a client for baseURL, which may omit the scheme.
func New(baseURL, key, secret string) (*EmqxClient, error) {
	if baseURL == "" || key == "" || secret == "" {
		return nil, errors.New("missing required EMQX settings (EMQX_URL, EMQX_API_KEY, EMQX_API_SECRET)")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return &EmqxClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    key,
		APISecret: secret,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}, nil
}

type CreateUserResponse struct {
	UserID      string `json:"user_id"`
	IsSuperuser bool   `json:"is_superuser"`
}

func (c *EmqxClient) usersEndpoint() string {
	return c.BaseURL + "/api/v5/authentication/password_based%3Abuilt_in_database/users"
}

func (c *EmqxClient) CreateUser(ctx context.Context, userID, password string, isSuperuser bool) (*CreateUserResponse, error) {
	payload := map[string]any{
		"user_id":      userID,
		"password":     password,
		"is_superuser": isSuperuser,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode EMQX payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.usersEndpoint(), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create EMQX request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.APIKey, c.APISecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to contact EMQX: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", ErrUserExists, userID)
	default:
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("emqx returned %s: %s", resp.Status, string(b))
	}

	var result CreateUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invalid emqx response: %w", err)
	}

	return &result, nil
}

// DeleteUser removes an MQTT user. A missing user is not an error.
func (c *EmqxClient) DeleteUser(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.usersEndpoint()+"/"+userID, nil)
	if err != nil {
		return fmt.Errorf("failed to create EMQX request: %w", err)
	}
	req.SetBasicAuth(c.APIKey, c.APISecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to contact EMQX: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("emqx returned %s: %s", resp.Status, string(b))
	}
	return nil
}
