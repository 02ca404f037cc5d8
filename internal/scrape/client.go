// Package scrape triggers the external article scraper and follows its terminal
// output.
//
//	POST {base}/scrape            starts a run; the JSON response is passed through
//	GET  {base}/terminal-output   text/event-stream of output lines
package scrape

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"datamanager/internal/infra/persistence/httpapi"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// EnvURL names the environment variable the commands read the base URL from.
const EnvURL = "DATAMANAGER_SCRAPE_URL"

const maxLine = 1 << 20

// Client talks to the scraper API.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. Output streams are long-lived, so
// the client should not carry a global timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient constructs a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: unsupported scheme", baseURL)
	}
	c := &Client{base: u.String(), http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base }

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return nil, &httpapi.StatusError{
		Method: req.Method,
		URL:    req.URL.String(),
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
}

// Start triggers a scrape run and returns the server's JSON acknowledgement.
// An empty response body yields a nil message.
func (c *Client) Start(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/scrape", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scrape response: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("scrape response is not JSON: %.64q", body)
	}
	return json.RawMessage(body), nil
}

// Output is a live terminal output stream.
type Output struct {
	lines  chan string
	body   io.ReadCloser
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Lines delivers output lines. It is closed when the stream ends.
func (o *Output) Lines() <-chan string { return o.lines }

// Err reports why the stream ended. It is nil after a clean EOF or Close and is
// only meaningful once Lines is closed.
func (o *Output) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Close stops the stream.
func (o *Output) Close() error {
	o.cancel()
	return nil
}

// Output opens the terminal output stream. Server-sent events are decoded into
// their data payload; plain text lines pass through unchanged.
func (c *Client) Output(ctx context.Context) (*Output, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/terminal-output", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	out := &Output{lines: make(chan string, 64), body: resp.Body, cancel: cancel}
	go out.run(ctx)
	return out, nil
}

func (o *Output) run(ctx context.Context) {
	defer close(o.lines)
	defer func() { _ = o.body.Close() }()

	emit := func(line string) bool {
		select {
		case o.lines <- line:
			return true
		case <-ctx.Done():
			return false
		}
	}

	sc := bufio.NewScanner(o.body)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	var data []string
	var pending bool
	flush := func() bool {
		if !pending {
			return true
		}
		line := strings.Join(data, "\n")
		data, pending = data[:0], false
		return emit(line)
	}
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		switch {
		case line == "":
			if !flush() {
				return
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			pending = true
		case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
		default:
			if !flush() || !emit(line) {
				return
			}
		}
	}
	if !flush() {
		return
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		o.mu.Lock()
		o.err = err
		o.mu.Unlock()
	}
}
