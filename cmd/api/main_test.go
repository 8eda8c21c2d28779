package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/wa-retell-relay/internal/config"
	"github.com/wolfman30/wa-retell-relay/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, m, _ := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveInbound("acknowledged")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "relay_webhook_inbound_total") {
		t.Fatalf("expected inbound counter to be exported")
	}
}

func TestBuildHandlerEndToEnd(t *testing.T) {
	var creates int32
	retell := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/create-chat":
			atomic.AddInt32(&creates, 1)
			_, _ = w.Write([]byte(`{"chat_id":"sess-1"}`))
		case "/create-chat-completion":
			_, _ = w.Write([]byte(`{"messages":[{"role":"agent","content":"¡Hola!"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer retell.Close()

	var delivered int32
	evo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/message/sendText/bot-1" || r.Header.Get("apikey") != "et" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer evo.Close()

	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{
		WebhookPath:         "/webhook",
		RetellAPIKey:        "rk",
		RetellAgentID:       "agentX",
		RetellBaseURL:       retell.URL,
		EvolutionURL:        evo.URL,
		EvolutionToken:      "et",
		EvolutionInstance:   "bot-1",
		EvolutionAuthScheme: "apikey",
		RedisAddr:           mr.Addr(),
	}
	h, cleanup, err := buildHandler(context.Background(), cfg, logging.NewWithWriter(io.Discard, "error"))
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	defer cleanup()

	body := `{"event":"messages.upsert","data":{"key":{"remoteJid":"34600111222@s.whatsapp.net","id":"evt-1"},"message":{"conversation":"hola"}}}`
	for i, wantSkipped := range []string{"", "duplicate"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, rr.Code, rr.Body.String())
		}
		var resp map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if got, _ := resp["skipped"].(string); got != wantSkipped {
			t.Fatalf("request %d: expected skipped %q, got %q", i, wantSkipped, got)
		}
	}
	if atomic.LoadInt32(&creates) != 1 || atomic.LoadInt32(&delivered) != 1 {
		t.Fatalf("expected one create and one delivery, got %d / %d", creates, delivered)
	}
	if !mr.Exists("relay:processed:evolution:evt-1") {
		t.Fatalf("expected processed marker in redis")
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/clear-sessions", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"cleared":1`) {
		t.Fatalf("unexpected clear-sessions response %d %s", rr.Code, rr.Body.String())
	}

	next := strings.Replace(body, "evt-1", "evt-2", 1)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(next)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after clear, got %d: %s", rr.Code, rr.Body.String())
	}
	if atomic.LoadInt32(&creates) != 2 {
		t.Fatalf("expected a fresh session after clear-sessions, got %d creates", creates)
	}
}
