package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"datamanager/internal/infra/persistence/httpapi"
)

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.BaseURL() != DefaultBaseURL {
		t.Fatalf("unexpected base url %q", c.BaseURL())
	}
	c, err = NewClient("http://scraper:8000/api/")
	if err != nil || c.BaseURL() != "http://scraper:8000/api" {
		t.Fatalf("expected trimmed base url, got %q (%v)", c.BaseURL(), err)
	}
	if _, err := NewClient("ftp://scraper"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestStartPostsEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/scrape" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "{}" {
			t.Errorf("unexpected body %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"started"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	msg, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if string(msg) != `{"status":"started"}` {
		t.Fatalf("unexpected ack %s", msg)
	}
}

func TestStartStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.Start(context.Background())
	var statusErr *httpapi.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 status error, got %v", err)
	}
}

func collect(t *testing.T, out *Output) []string {
	t.Helper()
	var lines []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-out.Lines():
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-timeout:
			t.Fatalf("timed out; got %v", lines)
		}
	}
}

func TestOutputDecodesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/terminal-output" || r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("unexpected request %s accept=%q", r.URL.Path, r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, ": keepalive\n\n")
		_, _ = io.WriteString(w, "event: output\ndata: Rewe: 12 Artikel\n\n")
		_, _ = io.WriteString(w, "data: first\r\ndata: second\r\n\r\n")
		_, _ = io.WriteString(w, "data: unterminated")
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	out, err := c.Output(context.Background())
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	defer out.Close()
	got := collect(t, out)
	want := []string{"Rewe: 12 Artikel", "first\nsecond", "unterminated"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if out.Err() != nil {
		t.Fatalf("unexpected stream error %v", out.Err())
	}
}

func TestOutputPassesPlainLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "starting\nPenny done\n")
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	out, err := c.Output(context.Background())
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	got := collect(t, out)
	if len(got) != 2 || got[0] != "starting" || got[1] != "Penny done" {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestOutputCloseEndsStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: hello\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := NewClient(srv.URL)
	out, err := c.Output(context.Background())
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	select {
	case line := <-out.Lines():
		if line != "hello" {
			t.Fatalf("unexpected line %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no line received")
	}
	_ = out.Close()
	if rest := collect(t, out); len(rest) != 0 {
		t.Fatalf("unexpected lines after close %q", rest)
	}
	if out.Err() != nil {
		t.Fatalf("close should not surface an error, got %v", out.Err())
	}
}

func TestOutputStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.Output(context.Background()); err == nil {
		t.Fatalf("expected status error")
	}
}
