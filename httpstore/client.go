// Package httpstore is a docsession.Store that talks to a docsession.Server
// over HTTP.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/airheartdev/docsession"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const applicationJSON = "application/json"

type (
	Client struct {
		baseURL string
		options *Options
	}

	Options struct {
		httpClient *http.Client
		token      string
		backoff    func() retry.Backoff
	}

	Option func(o *Options)

	// StatusError is an unexpected HTTP status from the server.
	StatusError struct {
		Status int
		Body   docsession.ErrorResponse
	}
)

var _ docsession.Store = (*Client)(nil)
var _ docsession.IDAllocator = (*Client)(nil)

func New(baseURL string, options ...Option) *Client {
	opts := &Options{
		httpClient: http.DefaultClient,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
		},
	}
	for _, option := range options {
		option(opts)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), options: opts}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.httpClient = client
	}
}

// WithToken sets the Authorization header sent with every request.
func WithToken(token string) Option {
	return func(o *Options) {
		o.token = token
	}
}

// WithRetry sets the backoff used for idempotent requests. Bulk writes are
// never retried.
func WithRetry(fn func() retry.Backoff) Option {
	return func(o *Options) {
		o.backoff = fn
	}
}

func (e *StatusError) Error() string {
	if e.Body.Error != "" {
		return fmt.Sprintf("docsession server: %d %s %s", e.Status, e.Body.Error, e.Body.Reason)
	}
	return fmt.Sprintf("docsession server: %d", e.Status)
}

func (c *Client) Fetch(ctx context.Context, id string) (docsession.Document, error) {
	var resp docsession.FetchResponse
	err := c.idempotent(ctx, docsession.DefaultFetchEndpoint, docsession.FetchRequest{ID: id}, &resp)
	if err != nil {
		return docsession.Document{}, err
	}
	return resp.Doc, nil
}

func (c *Client) BulkWrite(ctx context.Context, ops []docsession.Operation) ([]docsession.Result, error) {
	var resp docsession.BulkResponse
	if err := c.post(ctx, docsession.DefaultBulkEndpoint, docsession.BulkRequest{Ops: ops}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) QueryView(ctx context.Context, view string, params docsession.ViewParams) ([]docsession.Row, error) {
	var resp docsession.ViewResponse
	err := c.idempotent(ctx, docsession.DefaultViewEndpoint, docsession.ViewRequest{View: view, Params: params}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// AllocateID asks the server for a fresh id. It returns ErrNoAllocator when
// the server's store does not hand out ids.
func (c *Client) AllocateID(ctx context.Context) (string, error) {
	var resp docsession.AllocateResponse
	if err := c.idempotent(ctx, docsession.DefaultAllocateEndpoint, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// idempotent posts with retries on connection failures and 5xx replies other
// than 501.
func (c *Client) idempotent(ctx context.Context, path string, in, out any) error {
	return retry.Do(ctx, c.options.backoff(), func(ctx context.Context) error {
		err := c.post(ctx, path, in, out)
		var se *StatusError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &se) && (se.Status < http.StatusInternalServerError || se.Status == http.StatusNotImplemented):
			return err
		case errors.Is(err, docsession.ErrNotFound), errors.Is(err, docsession.ErrUnknownView), errors.Is(err, docsession.ErrNoAllocator):
			return err
		}
		return retry.RetryableError(err)
	})
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", applicationJSON)
	req.Header.Set(docsession.RequestIDHeader, uuid.NewString())
	if c.options.token != "" {
		req.Header.Set("Authorization", c.options.token)
	}

	resp, err := c.options.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &se.Body)
		switch se.Body.Error {
		case docsession.ErrorNotFound:
			return docsession.ErrNotFound
		case docsession.ErrorUnknownView:
			return fmt.Errorf("%w: %s", docsession.ErrUnknownView, se.Body.Reason)
		case docsession.ErrorNoAllocator:
			return docsession.ErrNoAllocator
		}
		if se.Status == http.StatusNotImplemented && path == docsession.DefaultAllocateEndpoint {
			return docsession.ErrNoAllocator
		}
		return se
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
