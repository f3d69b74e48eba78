// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// DefaultClientTimeout covers a reload that waits out the drain timeout.
const DefaultClientTimeout = 30 * time.Second

// Client talks to a running bot over its control socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient creates a client for socketPath. timeout <= 0 selects
// DefaultClientTimeout.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	var d net.Dialer
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: timeout,
		},
	}
}

// Health queries GET /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

// Status queries GET /status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &resp)
	return resp, err
}

// Command runs one admin command line and returns the bot's reply.
func (c *Client) Command(ctx context.Context, line string) (string, error) {
	var resp CommandResponse
	if err := c.do(ctx, http.MethodPost, "/command", CommandRequest{Line: line}, &resp); err != nil {
		return resp.Reply, err
	}
	return resp.Reply, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	errb := oops.In("control").With("socket", c.socketPath).With("path", path)

	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return errb.Wrap(err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://boncarobot"+path, &payload)
	if err != nil {
		return errb.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errb.Hint("is the bot running?").Wrapf(err, "connect to control socket")
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errb.With("status", resp.StatusCode).Wrapf(err, "decode response")
	}
	if resp.StatusCode != http.StatusOK {
		return errb.With("status", resp.StatusCode).Errorf("control request failed: %s", resp.Status)
	}
	return nil
}
