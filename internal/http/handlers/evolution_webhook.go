package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wa-retell-relay/internal/channels/evolution"
	"github.com/wolfman30/wa-retell-relay/internal/errx"
	"github.com/wolfman30/wa-retell-relay/internal/observability/metrics"
	"github.com/wolfman30/wa-retell-relay/internal/relay"
	"github.com/wolfman30/wa-retell-relay/pkg/logging"
)

const (
	providerEvolution = "evolution"
	maxWebhookBytes   = 1 << 20
	trackerTimeout    = 2 * time.Second

	skippedFromMe    = "from_me"
	skippedDuplicate = "duplicate"
)

var webhookTracer = otel.Tracer("relay.internal.http.handlers.evolution")

// Relayer relays one parsed inbound message.
type Relayer interface {
	Relay(ctx context.Context, in relay.Inbound) (relay.Result, error)
}

// ProcessedTracker claims gateway event ids. MarkProcessed returns false when
// the id is already claimed; Release drops a claim whose relay failed.
type ProcessedTracker interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Skipped string `json:"skipped,omitempty"`
}

// EvolutionWebhookHandler serves the gateway's messages.upsert webhook.
type EvolutionWebhookHandler struct {
	relay     Relayer
	processed ProcessedTracker
	metrics   *metrics.RelayMetrics
	logger    *logging.Logger
}

// NewEvolutionWebhookHandler builds the webhook handler. processed may be nil,
// which disables duplicate suppression.
func NewEvolutionWebhookHandler(relayer Relayer, processed ProcessedTracker, m *metrics.RelayMetrics, logger *logging.Logger) *EvolutionWebhookHandler {
	if relayer == nil {
		panic("handlers: relayer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EvolutionWebhookHandler{relay: relayer, processed: processed, metrics: m, logger: logger}
}

// Handle processes POST {webhook path}.
func (h *EvolutionWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(time.Since(start).Seconds()) }()

	ctx, span := webhookTracer.Start(r.Context(), "evolution.webhook")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.reject(w, errx.Malformed(err))
		span.RecordError(err)
		return
	}
	evt, err := evolution.DecodeWebhookEvent(body)
	if err != nil {
		h.reject(w, err)
		span.RecordError(err)
		return
	}
	if evt.FromMe() {
		h.skip(w, skippedFromMe)
		return
	}
	msg, err := evt.Inbound()
	if err != nil {
		h.reject(w, err)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("relay.sender", msg.SenderID),
		attribute.String("evolution.event_id", msg.EventID),
	)
	log := h.logger.With("sender", msg.SenderID, "event_id", msg.EventID)

	claimed, duplicate := h.claim(ctx, log, msg.EventID)
	if duplicate {
		log.Info("duplicate webhook skipped")
		h.skip(w, skippedDuplicate)
		return
	}

	if _, err := h.relay.Relay(ctx, relay.Inbound{SenderID: msg.SenderID, Text: msg.Text}); err != nil {
		if claimed {
			h.release(ctx, log, msg.EventID)
		}
		span.RecordError(err)
		status := errx.KindOf(err).Status()
		outcome := "errored"
		if status == http.StatusBadRequest {
			outcome = "malformed"
		}
		h.metrics.ObserveInbound(outcome)
		writeJSON(w, status, webhookResponse{Success: false, Error: err.Error()})
		return
	}

	h.metrics.ObserveInbound(string(relay.StageAcknowledged))
	writeJSON(w, http.StatusOK, webhookResponse{Success: true})
}

// claim reserves eventID before relaying so concurrent redeliveries are relayed
// once. A tracker failure leaves the event unclaimed and lets it through.
func (h *EvolutionWebhookHandler) claim(ctx context.Context, log *logging.Logger, eventID string) (claimed, duplicate bool) {
	if h.processed == nil || eventID == "" {
		return false, false
	}
	ctx, cancel := context.WithTimeout(ctx, trackerTimeout)
	defer cancel()
	ok, err := h.processed.MarkProcessed(ctx, providerEvolution, eventID)
	if err != nil {
		log.Warn("processed-event claim failed", "error", err)
		return false, false
	}
	return ok, !ok
}

func (h *EvolutionWebhookHandler) release(ctx context.Context, log *logging.Logger, eventID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackerTimeout)
	defer cancel()
	if err := h.processed.Release(ctx, providerEvolution, eventID); err != nil {
		log.Warn("failed to release processed-event claim", "error", err)
	}
}

func (h *EvolutionWebhookHandler) reject(w http.ResponseWriter, err error) {
	h.logger.Warn("malformed webhook payload", "error", err)
	h.metrics.ObserveInbound("malformed")
	writeJSON(w, http.StatusBadRequest, webhookResponse{Success: false, Error: err.Error()})
}

func (h *EvolutionWebhookHandler) skip(w http.ResponseWriter, reason string) {
	h.metrics.ObserveInbound("skipped_" + reason)
	writeJSON(w, http.StatusOK, webhookResponse{Success: true, Skipped: reason})
}
