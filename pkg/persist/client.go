// Package persist stores finished pages.
//
// The client side sends the serialized page to the end endpoint with a
// DELETE request; the server side decodes it, writes the page file and asks
// the process to shut down.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
)

// Persistence errors.
var (
	ErrEmptyText   = errors.New("persist: empty page text")
	ErrBadResponse = errors.New("persist: unexpected response status")
)

// ContentType is the header value sent with every page.
const ContentType = "application/json;charset=UTF-8"

// Payload is the request body.
type Payload struct {
	Text string `json:"text"`
}

// Client sends pages to the end endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client for endpoint. A nil httpClient uses
// http.DefaultClient.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Endpoint returns the target URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Send issues one DELETE request carrying page. The response body is
// discarded.
func (c *Client) Send(ctx context.Context, page string) error {
	body, err := json.Marshal(Payload{Text: page})
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send page: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrBadResponse, resp.Status)
	}
	return nil
}

// Dispatcher sends pages in the background without reporting the outcome to
// the caller. Failures are logged only.
type Dispatcher struct {
	client  *Client
	timeout time.Duration
	logger  logging.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Each request is bounded by timeout.
func NewDispatcher(client *Client, timeout time.Duration, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{client: client, timeout: timeout, logger: logger}
}

// Dispatch starts sending page and returns immediately. Cancelling ctx does
// not abort the request.
func (d *Dispatcher) Dispatch(ctx context.Context, page string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		start := time.Now()
		if err := d.client.Send(ctx, page); err != nil {
			d.logger.Warn("page dispatch failed",
				logging.String("endpoint", d.client.Endpoint()),
				logging.Err(err),
			)
			return
		}
		d.logger.Info("page dispatched",
			logging.String("endpoint", d.client.Endpoint()),
			logging.Int("bytes", len(page)),
			logging.Duration("duration", time.Since(start)),
		)
	}()
}

// Wait blocks until every dispatched request has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
