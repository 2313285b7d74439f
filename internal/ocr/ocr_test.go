package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:    srv.URL,
		Model:      "qwen2.5-vl",
		MaxRetries: 3,
		RetryBase:  time.Millisecond,
		RetryCap:   10 * time.Millisecond,
	})
	return c, srv
}

func TestExtractSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Model != "qwen2.5-vl" || len(body.Messages) != 1 || len(body.Messages[0].Images) != 1 {
			t.Fatalf("unexpected request body: %+v", body)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatResponseMessage{Content: "  extracted text  "}})
	})

	text, err := c.Extract(context.Background(), []byte{0xFF, 0xD8}, "transcribe this page")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "extracted text" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
}

func TestExtractRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatResponseMessage{Content: "ok"}})
	})

	text, err := c.Extract(context.Background(), []byte{0x01}, "p")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "ok" {
		t.Fatalf("expected ok, got %q", text)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestExtractRetriesOnEmptyText(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(chatResponse{Message: chatResponseMessage{Content: "   "}})
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatResponseMessage{Content: "recovered"}})
	})

	text, err := c.Extract(context.Background(), []byte{0x01}, "p")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "recovered" {
		t.Fatalf("expected recovered, got %q", text)
	}
}

func TestExtractDoesNotRetryOn400(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "bad request")
	})

	_, err := c.Extract(context.Background(), []byte{0x01}, "p")
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable 4xx, got %d", calls.Load())
	}
}

func TestExtractRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatResponseMessage{Content: "ok"}})
	})

	text, err := c.Extract(context.Background(), []byte{0x01}, "p")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "ok" {
		t.Fatalf("expected ok, got %q", text)
	}
}

func TestExtractExhaustsRetriesAndFails(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Extract(context.Background(), []byte{0x01}, "p")
	if err == nil {
		t.Fatal("expected retry-exhausted error")
	}
	if !strings.Contains(err.Error(), "retry exhausted") {
		t.Fatalf("expected wrapped retry-exhausted error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts (MaxRetries=3), got %d", calls.Load())
	}
}

func TestExtractMalformedJSONNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "{not json")
	})

	_, err := c.Extract(context.Background(), []byte{0x01}, "p")
	if err == nil {
		t.Fatal("expected error for malformed json")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 call for malformed json, got %d", calls.Load())
	}
}
