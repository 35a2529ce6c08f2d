// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package redisq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultURL     = "https://zkillredisq.stream/listen.php"
	DefaultTimeout = 30 * time.Second
	maxBodySize    = 4 * 1024 * 1024
)

// ErrDecode is returned by Poll when the feed answered with something that
// is not JSON. The request itself worked, so callers retry without backoff.
var ErrDecode = errors.New("feed response is not valid JSON")

type ClientConfig struct {
	URL         string
	QueueID     string
	WaitSeconds int
	Timeout     time.Duration
	UserAgent   string
}

// Client long-polls the RedisQ feed.
type Client struct {
	client *http.Client
	cfg    ClientConfig
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.QueueID == "" {
		return nil, errors.New("feed queue id is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid feed url %q: %w", cfg.URL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cfg: cfg,
	}, nil
}

func (c *Client) pollURL() string {
	u, _ := url.Parse(c.cfg.URL)
	q := u.Query()
	q.Set("queueID", c.cfg.QueueID)
	if c.cfg.WaitSeconds > 0 {
		q.Set("ttw", strconv.Itoa(c.cfg.WaitSeconds))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Poll blocks for at most the client timeout waiting for one event. It
// returns the response body, indented for the queue file, or nil when the
// feed reported no event.
func (c *Client) Poll(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pollURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: response too large, over %d bytes", ErrDecode, maxBodySize)
	}

	var envelope struct {
		Package json.RawMessage `json:"package"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(envelope.Package) == 0 || bytes.Equal(envelope.Package, []byte("null")) {
		return nil, nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "    "); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return out.Bytes(), nil
}
