package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/wa-retell-relay/internal/errx"
	"github.com/wolfman30/wa-retell-relay/pkg/logging"
)

func newTestClient(t *testing.T, baseURL, scheme string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:    baseURL,
		Token:      "evo_token",
		Instance:   "bot-1",
		AuthScheme: scheme,
		Logger:     logging.New("error"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestSendText(t *testing.T) {
	var received SendTextRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/message/sendText/bot-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer evo_token" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"key":{"id":"BAE5"},"status":"PENDING"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/", "")
	if err := client.SendText(context.Background(), "34600111222", "¡Hola!"); err != nil {
		t.Fatal(err)
	}
	if received.Number != "34600111222" {
		t.Errorf("sent to = %s, want 34600111222", received.Number)
	}
	if received.Text != "¡Hola!" {
		t.Errorf("sent text = %s, want ¡Hola!", received.Text)
	}
}

func TestSendTextAPIKeyScheme(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "evo_token" {
			t.Errorf("expected apikey header, got %q", r.Header.Get("apikey"))
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("did not expect Authorization header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "APIKEY")
	if err := client.SendText(context.Background(), "34600111222", "hi"); err != nil {
		t.Fatal(err)
	}
}

func TestSendTextErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   errx.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, errx.KindUpstreamAuth},
		{"server error", http.StatusInternalServerError, errx.KindUpstreamUnavailable},
		{"bad request", http.StatusBadRequest, errx.KindUpstreamProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, AuthBearer)
			err := client.SendText(context.Background(), "34600111222", "hi")
			if got := errx.KindOf(err); got != tt.want {
				t.Fatalf("kind = %s, want %s (%v)", got, tt.want, err)
			}
		})
	}
}

func TestSendTextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:  server.URL,
		Token:    "t",
		Instance: "bot-1",
		Timeout:  50 * time.Millisecond,
		Logger:   logging.New("error"),
	})
	if err != nil {
		t.Fatal(err)
	}
	err = client.SendText(context.Background(), "34600111222", "hi")
	if !errors.Is(err, errx.ErrUpstreamUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	cases := []ClientConfig{
		{Token: "t", Instance: "i"},
		{BaseURL: "http://x", Token: "t"},
		{BaseURL: "http://x", Instance: "i"},
		{BaseURL: "http://x", Token: "t", Instance: "i", AuthScheme: "basic"},
	}
	for _, cfg := range cases {
		if _, err := NewClient(cfg); err == nil {
			t.Errorf("expected error for %#v", cfg)
		}
	}
}
