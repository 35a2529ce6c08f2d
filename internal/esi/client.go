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

package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultURL     = "https://esi.evetech.net/latest"
	DefaultTimeout = 15 * time.Second
	maxBodySize    = 8 * 1024 * 1024
)

type ClientConfig struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	client  *http.Client
	baseURL string
	ua      string
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid esi url %q: %w", cfg.URL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimRight(cfg.URL, "/"),
		ua:      cfg.UserAgent,
	}, nil
}

func (c *Client) killmailURL(killID int64, hash string) string {
	return c.baseURL + "/killmails/" + strconv.FormatInt(killID, 10) + "/" + url.PathEscape(hash) + "/"
}

// Fetch issues a single request for the killmail identified by killID and hash.
func (c *Client) Fetch(ctx context.Context, killID int64, hash string) (*Killmail, error) {
	if killID <= 0 || hash == "" {
		return nil, fmt.Errorf("%w: missing kill id or hash", ErrPermanent)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.killmailURL(killID, hash), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &TransientError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	if len(body) > maxBodySize {
		return nil, &DecodeError{Err: fmt.Errorf("response too large, over %d bytes", maxBodySize)}
	}

	var km Killmail
	if err := json.Unmarshal(body, &km); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if km.KillmailID == 0 || km.SolarSystemID == 0 || km.KillmailTime.IsZero() {
		return nil, &DecodeError{Err: errors.New("killmail is missing required fields")}
	}
	if km.KillmailID != killID {
		return nil, &DecodeError{Err: fmt.Errorf("asked for killmail %d, got %d", killID, km.KillmailID)}
	}
	return &km, nil
}
