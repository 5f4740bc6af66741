// Package transport issues persistence requests to remote peers.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"

	"msgstore/internal/storage"
)

// replicationPath is the peer endpoint a replica message is posted to.
const replicationPath = "/messages"

// Client sends one persistence request to a remote host. The returned status
// is the peer's HTTP status code; classification is left to the caller.
type Client interface {
	Persist(ctx context.Context, host string, msg storage.Message) (status int, err error)
}

// HTTPClient is the net/http implementation of Client.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a transport client. Per-request deadlines come from
// the caller's context, not from the http.Client.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{client: &http.Client{}}
}

// Persist posts the message to the peer's replication endpoint.
func (c *HTTPClient) Persist(ctx context.Context, host string, msg storage.Message) (int, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.Wrap(err, "marshal replica message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"http://"+host+replicationPath, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrapf(err, "build request for %s", host)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "post to %s", host)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
