package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateOrderSuccess(t *testing.T) {
	var gotKey string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":123,"status":"pending"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	payload := json.RawMessage(`{"items":[],"payment_method":"cash","total":5}`)

	resp, err := client.CreateOrder(context.Background(), payload, "key-1")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if string(resp) != `{"id":123,"status":"pending"}` {
		t.Fatalf("unexpected response body: %s", resp)
	}
	if gotKey != "key-1" {
		t.Fatalf("idempotency key not sent, got %q", gotKey)
	}
	if string(gotBody) != string(payload) {
		t.Fatalf("payload not relayed verbatim: %s", gotBody)
	}
}

func TestCreateOrderApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"total does not match items"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)

	_, err := client.CreateOrder(context.Background(), json.RawMessage(`{}`), "key-1")
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", appErr.StatusCode)
	}
	if appErr.Message != "total does not match items" {
		t.Fatalf("unexpected message: %q", appErr.Message)
	}
	if IsTransport(err) {
		t.Fatalf("application error must not classify as transport")
	}
}

func TestCreateOrderConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	client := NewClient(srv.URL, time.Second)

	_, err := client.CreateOrder(context.Background(), json.RawMessage(`{}`), "key-1")
	if !IsTransport(err) {
		t.Fatalf("expected transport error for refused connection, got %v", err)
	}
}

func TestCreateOrderTimeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	client := NewClient(srv.URL, 100*time.Millisecond)

	_, err := client.CreateOrder(context.Background(), json.RawMessage(`{}`), "key-1")
	if !IsTransport(err) {
		t.Fatalf("expected transport error for timeout, got %v", err)
	}
}

func TestCreateOrderServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)

	// ambiguous server-side failures are retried, so they classify as
	// transport
	_, err := client.CreateOrder(context.Background(), json.RawMessage(`{}`), "key-1")
	if !IsTransport(err) {
		t.Fatalf("expected 5xx to classify as transport, got %v", err)
	}
}

func TestErrorMessageFallbacks(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"detail field", `{"detail":"bad total"}`, "bad total"},
		{"error field", `{"error":"validation_failed"}`, "validation_failed"},
		{"plain text", `nope`, "nope"},
		{"empty", ``, "request rejected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errorMessage([]byte(tc.body)); got != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got)
			}
		})
	}
}
