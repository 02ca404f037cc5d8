package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"datamanager/internal/blob/core"
)

func TestStore_MockedPutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests("images/")
	info, err := store.Put(ctx, "artikel/milch.png", bytes.NewReader([]byte("hello")), core.PutOptions{
		ContentType: "image/png",
		Metadata:    map[string]string{"source": "seed"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "artikel/milch.png" || info.ContentType != "image/png" || info.Size != 5 || info.ETag != "etag" {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, "artikel/milch.png", bytes.NewReader([]byte("ignored")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}

	got, rc, err := store.Get(ctx, "artikel/milch.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != "hello" || got.Metadata["source"] != "seed" {
		t.Fatalf("unexpected object %q %+v", body, got)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := NewMockForTests("")
	if _, _, err := store.Get(context.Background(), "nope.png"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := store.Get(context.Background(), ""); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
}

func TestStore_PresignedURL(t *testing.T) {
	store := NewMockForTests("images/")
	raw, err := store.URL(context.Background(), "/rezepte/suppe.jpg", core.URLOptions{Expiry: 5 * time.Minute})
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(raw, MockEndpoint+"/mock-bucket/images/rezepte/suppe.jpg") {
		t.Fatalf("unexpected presigned url %s", raw)
	}
	if u.Query().Get("X-Amz-Expires") != "300" || u.Query().Get("X-Amz-Signature") == "" {
		t.Fatalf("expected signed query, got %s", u.RawQuery)
	}
	def, err := store.URL(context.Background(), "a.png", core.URLOptions{})
	if err != nil {
		t.Fatalf("default url: %v", err)
	}
	if !strings.Contains(def, "X-Amz-Expires=900") {
		t.Fatalf("expected default expiry, got %s", def)
	}
	if store.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	store, err := New(context.Background(), Config{
		Bucket:          "media",
		Endpoint:        "http://minio.local:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		PathStyle:       true,
		Prefix:          "img/",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw, err := store.URL(context.Background(), "x.png", core.URLOptions{})
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if !strings.HasPrefix(raw, "http://minio.local:9000/media/img/x.png?") || !strings.Contains(raw, "key%2F") {
		t.Fatalf("unexpected url %s", raw)
	}
}

func TestOpenFromEnv(t *testing.T) {
	restore := func(key string) func() {
		orig, had := os.LookupEnv(key)
		return func() {
			if had {
				_ = os.Setenv(key, orig)
			} else {
				_ = os.Unsetenv(key)
			}
		}
	}
	for _, key := range []string{EnvBucket, EnvRegion, EnvEndpoint, EnvPathStyle, EnvPrefix} {
		defer restore(key)()
	}
	_ = os.Unsetenv(EnvBucket)
	if _, err := OpenFromEnv(context.Background()); err == nil || !strings.Contains(err.Error(), EnvBucket) {
		t.Fatalf("expected bucket requirement, got %v", err)
	}
	_ = os.Setenv(EnvBucket, "media")
	_ = os.Setenv(EnvRegion, "eu-central-1")
	_ = os.Setenv(EnvEndpoint, "http://localhost:9000")
	_ = os.Setenv(EnvPathStyle, "TRUE")
	_ = os.Setenv(EnvPrefix, "images/")
	store, err := OpenFromEnv(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.bucket != "media" || store.prefix != "images/" || !store.client.Options().UsePathStyle {
		t.Fatalf("unexpected store %+v", store)
	}
	if store.client.Options().Region != "eu-central-1" {
		t.Fatalf("unexpected region %s", store.client.Options().Region)
	}
}

func TestDecodeChunked(t *testing.T) {
	body, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc\r\n\r\n"))
	if !ok || string(body) != "hello" {
		t.Fatalf("unexpected decode %q %v", body, ok)
	}
	for _, raw := range []string{"hello", "zz\r\nhello\r\n0", "4\r\nhello\r\n0"} {
		if _, ok := decodeChunked([]byte(raw)); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
