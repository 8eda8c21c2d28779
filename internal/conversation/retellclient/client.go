package retellclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wa-retell-relay/internal/errx"
)

const (
	upstreamName     = "retell"
	defaultBaseURL   = "https://api.retell.ai/v1/chat"
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "wa-retell-relay/0.1"
	maxResponseBytes = 1 << 20

	OpCreateChat = "create_chat"
	OpCompletion = "create_chat_completion"
)

var retellTracer = otel.Tracer("relay.internal.conversation.retell")

// Config controls how the Retell client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client wraps the Retell chat endpoints used by the relay.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// New creates a configured Client. Every request is bounded by the client
// timeout; a supplied HTTPClient without one gets the default.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("retellclient: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	} else if httpClient.Timeout <= 0 {
		clone := *httpClient
		clone.Timeout = timeout
		httpClient = &clone
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// CreateSession opens a chat for agentID and returns its chat_id.
func (c *Client) CreateSession(ctx context.Context, agentID string) (string, error) {
	if strings.TrimSpace(agentID) == "" {
		return "", errors.New("retellclient: agent id required")
	}
	ctx, span := retellTracer.Start(ctx, "retell.create_chat")
	defer span.End()
	span.SetAttributes(attribute.String("retell.agent_id", agentID))

	var resp createChatResponse
	if err := c.invoke(ctx, OpCreateChat, "/create-chat", createChatRequest{AgentID: agentID}, &resp); err != nil {
		span.RecordError(err)
		return "", err
	}
	if strings.TrimSpace(resp.ChatID) == "" {
		err := errx.Protocol(upstreamName, OpCreateChat, errors.New("response missing chat_id"))
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("retell.chat_id", resp.ChatID))
	return resp.ChatID, nil
}

// CreateChatCompletion sends content on chatID and returns the normalized turns.
func (c *Client) CreateChatCompletion(ctx context.Context, chatID, content string) ([]Turn, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.New("retellclient: chat id required")
	}
	var resp completionResponse
	if err := c.invoke(ctx, OpCompletion, "/create-chat-completion", completionRequest{ChatID: chatID, Content: content}, &resp); err != nil {
		return nil, err
	}
	if resp.Messages == nil {
		return nil, errx.Protocol(upstreamName, OpCompletion, errors.New("response missing messages"))
	}
	turns := make([]Turn, 0, len(*resp.Messages))
	for _, m := range *resp.Messages {
		turns = append(turns, m.turn())
	}
	return turns, nil
}

// SendMessage sends text on sessionID and returns the agent's reply.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	ctx, span := retellTracer.Start(ctx, "retell.create_chat_completion")
	defer span.End()
	span.SetAttributes(attribute.String("retell.chat_id", sessionID))

	turns, err := c.CreateChatCompletion(ctx, sessionID, text)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int("retell.turns", len(turns)))
	reply, ok := SelectReply(turns)
	if !ok {
		err := errx.NoAgentReply(upstreamName, OpCompletion)
		span.RecordError(err)
		return "", err
	}
	return reply.Content, nil
}

func (c *Client) invoke(ctx context.Context, op, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("retellclient: marshal %s body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("retellclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errx.Transport(upstreamName, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errx.Transport(upstreamName, op, fmt.Errorf("read response: %w", err))
	}
	c.logger.Debug("retell call",
		"op", op,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errx.FromStatus(upstreamName, op, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errx.Protocol(upstreamName, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
