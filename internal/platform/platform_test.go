package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUpstreamErrorRetryable(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{200, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, c := range cases {
		e := &UpstreamError{URL: "https://api.chess.com/pub/player/x", Status: c.status}
		if got := e.Retryable(); got != c.want {
			t.Errorf("Retryable() for status %d = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestNetworkErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	e := &NetworkError{URL: "https://example.com", Err: inner}
	if !errors.Is(e, inner) {
		t.Fatalf("expected NetworkError to unwrap to inner error")
	}
}

func TestDecodeErrorUnwrap(t *testing.T) {
	inner := errors.New("unexpected token")
	e := &DecodeError{URL: "https://example.com", Err: inner}
	if !errors.Is(e, inner) {
		t.Fatalf("expected DecodeError to unwrap to inner error")
	}
}

func TestFetchJSONJournalsAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", r.Header.Get("User-Agent"))
		}
		w.Header().Set("ETag", "abc123")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var loggedStatus int
	var loggedErr error
	logFn := func(ctx context.Context, url string, statusCode int, etag, lastModified string, fetchErr error) {
		loggedStatus = statusCode
		loggedErr = fetchErr
	}

	c := NewClient(5*time.Second, "test-agent", 0, logFn)
	result, err := c.FetchJSON(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("FetchJSON: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}
	if result.ETag != "abc123" {
		t.Errorf("ETag = %q, want abc123", result.ETag)
	}
	if string(result.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", result.Body)
	}
	if loggedStatus != http.StatusOK || loggedErr != nil {
		t.Errorf("expected fetch log to record success, got status=%d err=%v", loggedStatus, loggedErr)
	}
}

func TestFetchJSONNonOKDoesNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, "test-agent", 0, nil)
	result, err := c.FetchJSON(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("FetchJSON should not error on non-200, got: %v", err)
	}
	if result.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", result.StatusCode)
	}
}
