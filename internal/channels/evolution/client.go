package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wa-retell-relay/internal/errx"
	"github.com/wolfman30/wa-retell-relay/pkg/logging"
)

const (
	upstreamName       = "evolution"
	defaultHTTPTimeout = 15 * time.Second

	OpSendText = "send_text"

	// AuthBearer sends the token as "Authorization: Bearer <token>".
	AuthBearer = "bearer"
	// AuthAPIKey sends the token in the "apikey" header.
	AuthAPIKey = "apikey"
)

var evolutionTracer = otel.Tracer("relay.internal.channels.evolution")

// ClientConfig configures the Evolution API client.
type ClientConfig struct {
	BaseURL    string
	Token      string
	Instance   string
	AuthScheme string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client sends WhatsApp messages through an Evolution API instance.
type Client struct {
	baseURL    string
	token      string
	instance   string
	authScheme string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a new Evolution API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("evolution: base URL is required")
	}
	if strings.TrimSpace(cfg.Instance) == "" {
		return nil, errors.New("evolution: instance is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("evolution: token is required")
	}
	scheme := strings.ToLower(strings.TrimSpace(cfg.AuthScheme))
	switch scheme {
	case "":
		scheme = AuthBearer
	case AuthBearer, AuthAPIKey:
	default:
		return nil, fmt.Errorf("evolution: unknown auth scheme %q", cfg.AuthScheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	} else if httpClient.Timeout <= 0 {
		clone := *httpClient
		clone.Timeout = timeout
		httpClient = &clone
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		instance:   cfg.Instance,
		authScheme: scheme,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// SendText sends a plain text message to recipientID. Any 2xx counts as accepted.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	ctx, span := evolutionTracer.Start(ctx, "evolution.send_text")
	defer span.End()
	span.SetAttributes(
		attribute.String("evolution.instance", c.instance),
		attribute.String("evolution.recipient", recipientID),
	)

	if err := c.sendText(ctx, recipientID, text); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (c *Client) sendText(ctx context.Context, recipientID, text string) error {
	if strings.TrimSpace(recipientID) == "" {
		return errors.New("evolution: recipient required")
	}
	body, err := json.Marshal(SendTextRequest{Number: recipientID, Text: text})
	if err != nil {
		return fmt.Errorf("evolution: marshal send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, url.PathEscape(c.instance))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("evolution: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errx.Transport(upstreamName, OpSendText, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return errx.Transport(upstreamName, OpSendText, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errx.FromStatus(upstreamName, OpSendText, resp.StatusCode, respBody)
	}
	c.logger.Debug("evolution text sent", "recipient", recipientID, "status", resp.StatusCode)
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.authScheme == AuthAPIKey {
		req.Header.Set("apikey", c.token)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}
