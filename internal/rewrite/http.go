package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 1 << 20

// HTTPClient calls a remote /api/tone endpoint.
type HTTPClient struct {
	URL    string // full endpoint URL
	Token  string // optional bearer token
	Legacy bool   // send bare {text, x, y}
	Client *http.Client
}

// NewHTTPClient targets a server base URL such as http://127.0.0.1:8080.
// A URL that already ends in /api/tone is used as is.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	url := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(url, "/api/tone") {
		url += "/api/tone"
	}
	return &HTTPClient{URL: url, Token: token}
}

func (c *HTTPClient) Rewrite(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	shape := ShapeStructured
	if c.Legacy {
		shape = ShapeLegacy
	}
	body, err := EncodeRequest(req, shape)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", &ServiceError{Op: "http", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &ServiceError{Op: "http", Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var out WireResponse
	decodeErr := json.Unmarshal(data, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		return "", &ServiceError{Op: "http", Status: resp.StatusCode, Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return "", &ServiceError{Op: "http", Status: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", decodeErr)}
	}
	if out.Error != "" {
		return "", &ServiceError{Op: "http", Status: resp.StatusCode, Err: errors.New(out.Error)}
	}
	if out.Text == "" {
		return "", &ServiceError{Op: "http", Status: resp.StatusCode, Err: errors.New("malformed response: missing text")}
	}
	return out.Text, nil
}
