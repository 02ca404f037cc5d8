package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MockEndpoint is the base endpoint of stores built by NewMockForTests.
const MockEndpoint = "https://mock.s3.local"

// NewMockForTests returns a store whose client talks to an in-process fake of
// the HEAD/GET/PUT object calls. Presigned URLs point at MockEndpoint.
func NewMockForTests(prefix string) *Store {
	rt := &mockTransport{objects: make(map[string]mockObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(MockEndpoint)
	})
	return newStore(client, "mock-bucket", prefix)
}

type mockObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

// mockTransport keys objects by the path-style "bucket/key" path.
type mockTransport struct {
	mu      sync.Mutex
	objects map[string]mockObject
}

func emptyResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key := strings.TrimPrefix(req.URL.Path, "/")
	m.mu.Lock()
	defer m.mu.Unlock()
	switch req.Method {
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if decoded, ok := decodeChunked(body); ok {
			body = decoded
		}
		md := map[string]string{}
		for name, values := range req.Header {
			if lower := strings.ToLower(name); strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
				md[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
			}
		}
		m.objects[key] = mockObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		resp := emptyResponse(http.StatusOK)
		resp.Header.Set("ETag", `"etag"`)
		return resp, nil
	case http.MethodHead, http.MethodGet:
		obj, ok := m.objects[key]
		if !ok {
			return emptyResponse(http.StatusNotFound), nil
		}
		resp := emptyResponse(http.StatusOK)
		resp.Header.Set("Content-Length", strconv.Itoa(len(obj.body)))
		resp.Header.Set("Content-Type", obj.contentType)
		resp.Header.Set("ETag", `"etag"`)
		resp.Header.Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		for k, v := range obj.metadata {
			resp.Header.Set("X-Amz-Meta-"+k, v)
		}
		if req.Method == http.MethodGet {
			resp.Body = io.NopCloser(bytes.NewReader(bytes.Clone(obj.body)))
			resp.ContentLength = int64(len(obj.body))
		}
		return resp, nil
	default:
		return emptyResponse(http.StatusNotImplemented), nil
	}
}

// decodeChunked unwraps a single-chunk aws-chunked payload:
// <hex size>\r\n<body>\r\n0\r\n[trailers]
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	size, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}
