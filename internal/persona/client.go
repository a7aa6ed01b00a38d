package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client is an HTTP client for the identity service's persona endpoint
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewClient creates a new identity service client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
	}
}

type personasResponse struct {
	Personas []Persona `json:"personas"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetUserPersonas calls GET /users/{id}/personas on the identity service
func (c *Client) GetUserPersonas(ctx context.Context, userID uint) ([]Persona, error) {
	url := fmt.Sprintf("%s/users/%d/personas", c.BaseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Error("Persona lookup request failed",
			zap.Uint("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("persona lookup failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Logger.Error("Failed to read persona response", zap.Error(err))
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
			return nil, fmt.Errorf("persona lookup returned %d", resp.StatusCode)
		}
		c.Logger.Warn("Persona lookup rejected",
			zap.Uint("user_id", userID),
			zap.Int("status_code", resp.StatusCode),
			zap.String("error", errResp.Error))
		return nil, fmt.Errorf("persona lookup returned %d: %s", resp.StatusCode, errResp.Error)
	}

	var parsed personasResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.Logger.Error("Failed to parse persona response", zap.Error(err))
		return nil, err
	}

	return parsed.Personas, nil
}
