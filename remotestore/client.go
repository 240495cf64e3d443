// Package remotestore implements usersync.RemoteStore over HTTP, and
// provides a reference in-memory server for tests, grounded on the
// teacher's transport/httptransport HTTP client (gzip compression,
// size-limited responses, functional options) extended with
// If-Match/ETag optimistic-concurrency semantics for resource writes.
package remotestore

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tembleque/usersync"
	syncerrors "github.com/tembleque/usersync/errors"
)

// Limits bounds request/response size and controls gzip compression,
// mirroring the teacher's httptransport.Limits.
type Limits struct {
	MaxBodyBytes         int64
	MaxDecompressedBytes int64
	EnableGzip           bool
	GzipMinBytes         int
}

// DefaultLimits matches the teacher's defaults.
var DefaultLimits = Limits{
	MaxBodyBytes:         8 << 20,
	MaxDecompressedBytes: 64 << 20,
	EnableGzip:           true,
	GzipMinBytes:         1024,
}

// Client is an HTTP-backed usersync.RemoteStore.
type Client struct {
	baseURL string
	http    *http.Client
	limits  Limits
}

// Option configures a Client using the functional-options pattern.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(c *Client) { c.limits = l }
}

// New builds a Client against baseURL, e.g. "https://sync.example.com".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limits:  DefaultLimits,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type readResourceResponse struct {
	Ref     string `json:"ref"`
	Content string `json:"content,omitempty"`
	Absent  bool   `json:"absent"`
}

type writeResourceResponse struct {
	Ref string `json:"ref"`
}

type refEntry struct {
	Created time.Time `json:"created"`
	Ref     string    `json:"ref"`
}

// ReadResource implements usersync.RemoteStore.
func (c *Client) ReadResource(ctx context.Context, resource usersync.Resource) (usersync.RemoteUserData, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.resourceURL(resource), nil)
	if err != nil {
		return usersync.RemoteUserData{}, err
	}

	resp, err := c.do(req)
	if err != nil {
		return usersync.RemoteUserData{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return usersync.RemoteUserData{}, c.statusError(syncerrors.OpSync, resp)
	}

	reader, cleanup, err := c.decompress(resp)
	if err != nil {
		return usersync.RemoteUserData{}, syncerrors.NetworkError(syncerrors.OpSync, err)
	}
	defer cleanup()

	var body readResourceResponse
	if err := json.NewDecoder(reader).Decode(&body); err != nil {
		return usersync.RemoteUserData{}, syncerrors.NetworkError(syncerrors.OpSync, fmt.Errorf("decode response: %w", err))
	}
	if body.Absent {
		return usersync.RemoteUserData{Ref: body.Ref}, nil
	}
	data, err := usersync.ParseSyncData([]byte(body.Content))
	if err != nil {
		return usersync.RemoteUserData{}, err
	}
	return usersync.RemoteUserData{Ref: body.Ref, SyncData: &data}, nil
}

// WriteResource implements usersync.RemoteStore.
func (c *Client) WriteResource(ctx context.Context, resource usersync.Resource, content []byte, expectedRef string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.resourceURL(resource), bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if expectedRef != "" {
		req.Header.Set("If-Match", expectedRef)
	}

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPreconditionFailed {
		return "", syncerrors.PreconditionFailed(syncerrors.OpApplyPreview, fmt.Errorf("expected ref %q is stale", expectedRef))
	}
	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(syncerrors.OpApplyPreview, resp)
	}

	var body writeResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", syncerrors.NetworkError(syncerrors.OpApplyPreview, fmt.Errorf("decode response: %w", err))
	}
	return body.Ref, nil
}

// ResolveContent implements usersync.RemoteStore.
func (c *Client) ResolveContent(ctx context.Context, resource usersync.Resource, ref string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.resourceURL(resource)+"/versions/"+ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, syncerrors.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(syncerrors.OpResolveContent, resp)
	}

	reader, cleanup, err := c.decompress(resp)
	if err != nil {
		return nil, syncerrors.NetworkError(syncerrors.OpResolveContent, err)
	}
	defer cleanup()
	return io.ReadAll(io.LimitReader(reader, c.limits.MaxDecompressedBytes))
}

// GetAllRefs implements usersync.RemoteStore.
func (c *Client) GetAllRefs(ctx context.Context, resource usersync.Resource) ([]usersync.SyncResourceHandle, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.resourceURL(resource)+"/versions", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(syncerrors.OpListHandles, resp)
	}

	reader, cleanup, err := c.decompress(resp)
	if err != nil {
		return nil, syncerrors.NetworkError(syncerrors.OpListHandles, err)
	}
	defer cleanup()

	var entries []refEntry
	if err := json.NewDecoder(reader).Decode(&entries); err != nil {
		return nil, syncerrors.NetworkError(syncerrors.OpListHandles, fmt.Errorf("decode response: %w", err))
	}

	handles := make([]usersync.SyncResourceHandle, 0, len(entries))
	for _, e := range entries {
		handles = append(handles, usersync.NewRemoteBackupHandle(resource, e.Ref, e.Created))
	}
	return handles, nil
}

func (c *Client) resourceURL(resource usersync.Resource) string {
	return fmt.Sprintf("%s/resources/%s", c.baseURL, resource)
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	var reqBody io.Reader = body
	compressed := false
	if body != nil && c.limits.EnableGzip {
		raw, err := io.ReadAll(io.LimitReader(body, c.limits.MaxBodyBytes+1))
		if err != nil {
			return nil, syncerrors.NetworkError(syncerrors.OpSync, err)
		}
		if int64(len(raw)) > c.limits.MaxBodyBytes {
			return nil, syncerrors.NewWithComponent(syncerrors.OpSync, "remote-store", fmt.Errorf("request body exceeds %d bytes", c.limits.MaxBodyBytes))
		}
		if len(raw) >= c.limits.GzipMinBytes {
			var buf bytes.Buffer
			gw := gzip.NewWriter(&buf)
			gw.Write(raw)
			gw.Close()
			reqBody = &buf
			compressed = true
		} else {
			reqBody = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, syncerrors.NewWithComponent(syncerrors.OpSync, "remote-store", err)
	}
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if c.limits.EnableGzip {
		req.Header.Set("Accept-Encoding", "gzip")
	}
	if headers := usersync.HeadersFromContext(ctx); headers != nil {
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, syncerrors.NetworkError(syncerrors.OpSync, err)
	}
	return resp, nil
}

func (c *Client) decompress(resp *http.Response) (io.Reader, func(), error) {
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, func() {}, err
		}
		return io.LimitReader(gr, c.limits.MaxDecompressedBytes), func() { gr.Close() }, nil
	}
	return io.LimitReader(resp.Body, c.limits.MaxDecompressedBytes), func() {}, nil
}

func (c *Client) statusError(op syncerrors.Operation, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return syncerrors.NewWithComponent(op, "remote-store", fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body)))
}

var _ usersync.RemoteStore = (*Client)(nil)
