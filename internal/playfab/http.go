package playfab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/playfab-session/internal/config"
)

const sdkHeader = "PlayFabSessionGo-1.0"

// HTTPCaller calls the backend REST API
type HTTPCaller struct {
	client    *http.Client
	baseURL   string
	secretKey string
	logger    *slog.Logger
}

// NewHTTPCaller creates a new HTTP backend caller
func NewHTTPCaller(cfg *config.PlayFabConfig, logger *slog.Logger) *HTTPCaller {
	return &HTTPCaller{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.Endpoint(), "/"),
		secretKey: cfg.DeveloperSecretKey,
		logger:    logger,
	}
}

// Call posts request to the operation endpoint and decodes the response envelope
func (c *HTTPCaller) Call(ctx context.Context, operation, sessionTicket string, request any) (*Response, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+operation, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-PlayFabSDK", sdkHeader)
	if sessionTicket != "" {
		req.Header.Set("X-Authorization", sessionTicket)
	}
	if c.secretKey != "" && strings.HasPrefix(operation, "Server/") {
		req.Header.Set("X-SecretKey", c.secretKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", operation, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", operation, err)
	}

	c.logger.Debug("backend call", "operation", operation, "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
		if len(payload) > 0 {
			// A body that is not an error envelope still yields the status-only error.
			_ = json.Unmarshal(payload, apiErr)
		}
		return nil, apiErr
	}

	var envelope Response
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decoding %s envelope: %w", operation, err)
	}
	return &envelope, nil
}
