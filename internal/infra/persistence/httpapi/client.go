// Package httpapi implements the record store contract as a client of the
// record HTTP API:
//
//	GET    {base}/{collection}
//	PATCH  {base}/{collection}/{id}                      {"data": {field: value}}
//	POST   {base}/{collection}/{id}/array/{field}        {"value": value}
//	DELETE {base}/{collection}/{id}/array/{field}/{value}
//	DELETE {base}/{collection}/{id}
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"datamanager/pkg/domain"
)

var _ domain.RecordStore = (*Client)(nil)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// DefaultIDFields are consulted in order to find a record's id.
var DefaultIDFields = []string{"id", "docId"}

const maxErrorBody = 4 << 10

// Client talks to the record HTTP API.
type Client struct {
	base     *url.URL
	http     *http.Client
	idFields []string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithIDFields sets the response fields consulted, in order, for record ids.
func WithIDFields(fields ...string) Option {
	return func(c *Client) {
		cleaned := make([]string, 0, len(fields))
		for _, f := range fields {
			if f = strings.TrimSpace(f); f != "" {
				cleaned = append(cleaned, f)
			}
		}
		if len(cleaned) > 0 {
			c.idFields = cleaned
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
	c := &Client{
		base:     u,
		http:     &http.Client{Timeout: 30 * time.Second},
		idFields: DefaultIDFields,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.RawPath = c.base.EscapedPath() + "/" + strings.Join(escaped, "/")
	u.Path = c.base.Path + "/" + strings.Join(segments, "/")
	return u.String()
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, collection, id string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{Method: method, URL: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	if resp.StatusCode == http.StatusNotFound && id != "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrNotFound{Collection: collection, ID: id}, statusErr)
	}
	return nil, statusErr
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any, collection, id string) error {
	resp, err := c.do(ctx, method, endpoint, body, collection, id)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// FetchCollection lists every record of a collection. Records are keyed by the
// first configured id field present on each document.
func (c *Client) FetchCollection(ctx context.Context, collection string) ([]domain.Record, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint(collection), nil, collection, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var docs []map[string]any
	if err := dec.Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	out := make([]domain.Record, 0, len(docs))
	for _, doc := range docs {
		r, err := domain.RecordFromDocument(doc, c.idFields...)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, r)
	}
	return out, nil
}

type patchBody struct {
	Data map[string]domain.Value `json:"data"`
}

type valueBody struct {
	Value domain.Value `json:"value"`
}

// PatchField sends a single-field PATCH.
func (c *Client) PatchField(ctx context.Context, collection, id, field string, value domain.Value) error {
	body := patchBody{Data: map[string]domain.Value{field: value}}
	return c.send(ctx, http.MethodPatch, c.endpoint(collection, id), body, collection, id)
}

// AppendArrayElement posts value to the field's array endpoint.
func (c *Client) AppendArrayElement(ctx context.Context, collection, id, field string, value domain.Value) error {
	return c.send(ctx, http.MethodPost, c.endpoint(collection, id, "array", field), valueBody{Value: value}, collection, id)
}

// RemoveArrayElement deletes value from the field's array. The value travels as
// its text form in the final path segment.
func (c *Client) RemoveArrayElement(ctx context.Context, collection, id, field string, value domain.Value) error {
	return c.send(ctx, http.MethodDelete, c.endpoint(collection, id, "array", field, value.Text()), nil, collection, id)
}

// DeleteRecord deletes a record.
func (c *Client) DeleteRecord(ctx context.Context, collection, id string) error {
	return c.send(ctx, http.MethodDelete, c.endpoint(collection, id), nil, collection, id)
}
