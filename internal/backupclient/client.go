// Package backupclient drives the pgbackup sidecar that snapshots the
// fee database.
package backupclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const backupTimeout = 2 * time.Minute

type Client struct {
	baseURL string
	http    *http.Client
}

// New talks to the sidecar at baseURL, e.g. http://pgbackup:8081.
func New(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{}}
}

func (c *Client) do(ctx context.Context, path string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// Trigger asks for a fresh dump and returns the sidecar's reply, usually
// the dump name.
func (c *Client) Trigger(ctx context.Context) (string, error) {
	return c.do(ctx, "/cgi-bin/backup", backupTimeout)
}
