package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/wa-retell-relay/internal/errx"
	"github.com/wolfman30/wa-retell-relay/internal/observability/metrics"
	"github.com/wolfman30/wa-retell-relay/internal/session"
	"github.com/wolfman30/wa-retell-relay/pkg/logging"
)

// Stage names a step of the webhook relay.
type Stage string

const (
	StageReceived        Stage = "received"
	StageParsed          Stage = "parsed"
	StageSessionResolved Stage = "session_resolved"
	StageReplyObtained   Stage = "reply_obtained"
	StageDelivered       Stage = "delivered"
	StageAcknowledged    Stage = "acknowledged"
	StageErrored         Stage = "errored"
)

// StageError records the stage a relay failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("relay: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded on err, or StageErrored when none is.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageErrored
}

// Conversation opens AI sessions and exchanges turns with them.
type Conversation interface {
	CreateSession(ctx context.Context, agentID string) (string, error)
	SendMessage(ctx context.Context, sessionID, text string) (string, error)
}

// Delivery sends a text back to a chat user.
type Delivery interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// Inbound is a parsed chat message ready to relay.
type Inbound struct {
	SenderID string
	Text     string
}

// Result describes a successful relay.
type Result struct {
	SessionID      string
	SessionCreated bool
	Reply          string
}

// Config wires a Service.
type Config struct {
	Resolver     *session.Resolver
	Conversation Conversation
	Delivery     Delivery
	AgentID      string
	Logger       *logging.Logger
	Metrics      *metrics.RelayMetrics
	Tracer       trace.Tracer
}

// Service drives one inbound message through session lookup, the AI turn and delivery.
type Service struct {
	resolver     *session.Resolver
	conversation Conversation
	delivery     Delivery
	agentID      string
	logger       *logging.Logger
	metrics      *metrics.RelayMetrics
	tracer       trace.Tracer
}

// NewService validates cfg and returns a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("relay: session resolver required")
	}
	if cfg.Conversation == nil {
		return nil, errors.New("relay: conversation client required")
	}
	if cfg.Delivery == nil {
		return nil, errors.New("relay: delivery client required")
	}
	if cfg.AgentID == "" {
		return nil, errors.New("relay: agent id required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("relay.internal.relay")
	}
	return &Service{
		resolver:     cfg.Resolver,
		conversation: cfg.Conversation,
		delivery:     cfg.Delivery,
		agentID:      cfg.AgentID,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
	}, nil
}

// Sessions exposes the store behind the resolver for administrative use.
func (s *Service) Sessions() session.Store {
	return s.resolver.Store()
}

// Relay resolves the sender's session, asks the agent for a reply and delivers it.
// Failures come back as *StageError wrapping an errx error.
func (s *Service) Relay(ctx context.Context, in Inbound) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "relay.message")
	defer span.End()
	span.SetAttributes(attribute.String("relay.sender", in.SenderID))

	log := s.logger.With("sender", in.SenderID)
	log.Debug("relay stage", "stage", StageReceived)
	if in.SenderID == "" || in.Text == "" {
		err := &StageError{Stage: StageParsed, Err: errx.Malformed(errors.New("sender and text required"))}
		span.RecordError(err)
		return Result{}, err
	}
	log.Debug("relay stage", "stage", StageParsed)

	sessionID, created, err := s.resolver.Resolve(ctx, in.SenderID, s.createSession)
	if err != nil && errx.KindOf(err) == errx.KindUnknown &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// Caller stopped waiting on a shared create.
		err = errx.Transport("retell", "create_chat", err)
	}
	if err != nil {
		return Result{}, s.fail(span, log, StageSessionResolved, err)
	}
	if created {
		log.Info("session created", "session_id", sessionID)
	}
	span.SetAttributes(
		attribute.String("relay.session_id", sessionID),
		attribute.Bool("relay.session_created", created),
	)
	log.Debug("relay stage", "stage", StageSessionResolved, "session_id", sessionID)

	reply, err := s.sendMessage(ctx, sessionID, in.Text)
	if err != nil {
		return Result{}, s.fail(span, log, StageReplyObtained, err)
	}
	log.Debug("relay stage", "stage", StageReplyObtained, "reply_len", len(reply))

	if err := s.sendText(ctx, in.SenderID, reply); err != nil {
		return Result{}, s.fail(span, log, StageDelivered, err)
	}
	log.Info("reply delivered", "stage", StageDelivered, "session_id", sessionID)

	return Result{SessionID: sessionID, SessionCreated: created, Reply: reply}, nil
}

func (s *Service) createSession(ctx context.Context) (string, error) {
	start := time.Now()
	id, err := s.conversation.CreateSession(ctx, s.agentID)
	s.observe("retell", "create_chat", start, err)
	if err == nil {
		s.metrics.SessionCreated()
	}
	return id, err
}

func (s *Service) sendMessage(ctx context.Context, sessionID, text string) (string, error) {
	start := time.Now()
	reply, err := s.conversation.SendMessage(ctx, sessionID, text)
	s.observe("retell", "create_chat_completion", start, err)
	return reply, err
}

func (s *Service) sendText(ctx context.Context, recipientID, text string) error {
	start := time.Now()
	err := s.delivery.SendText(ctx, recipientID, text)
	s.observe("evolution", "send_text", start, err)
	return err
}

func (s *Service) observe(upstream, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = errx.KindOf(err).String()
	}
	s.metrics.ObserveUpstream(upstream, op, result, time.Since(start).Seconds())
}

func (s *Service) fail(span trace.Span, log *logging.Logger, stage Stage, err error) error {
	span.RecordError(err)
	span.SetAttributes(attribute.String("relay.failed_stage", string(stage)))
	log.Error("relay failed", "stage", stage, "kind", errx.KindOf(err).String(), "error", err)
	return &StageError{Stage: stage, Err: err}
}
