package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client calls the primary finish-commit endpoint. When it fails for any
// reason the pipeline falls back to a direct insert via Repo.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
	}
}

type commitRequest struct {
	UserID  string  `json:"userId"`
	Summary Summary `json:"summary"`
}

type commitResponse struct {
	OK    bool   `json:"ok"`
	Saved *struct {
		ID string `json:"id"`
	} `json:"saved,omitempty"`
	Error string `json:"error,omitempty"`
}

// Commit submits the summary and returns the saved workout id.
func (c *Client) Commit(ctx context.Context, userID string, summary Summary) (string, error) {
	if c.endpoint == "" {
		return "", errors.New("finish endpoint not configured")
	}

	body, err := json.Marshal(commitRequest{UserID: userID, Summary: summary})
	if err != nil {
		return "", fmt.Errorf("marshal commit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new commit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("commit call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("commit call: unexpected status %d", resp.StatusCode)
	}

	var cr commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode commit response: %w", err)
	}
	if !cr.OK || cr.Saved == nil {
		if cr.Error != "" {
			return "", fmt.Errorf("commit rejected: %s", cr.Error)
		}
		return "", errors.New("commit rejected")
	}
	return cr.Saved.ID, nil
}
