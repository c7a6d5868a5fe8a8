package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicpulse/outreach/internal/channels"
	"github.com/clinicpulse/outreach/pkg/logging"
)

var sendTracer = otel.Tracer("outreach.internal.channels.whatsapp")

const (
	sendTimeout = 10 * time.Second
	maxAttempts = 3
)

// Client posts outbound WhatsApp messages through the gateway's REST API.
type Client struct {
	apiKey     string
	fromNumber string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// Config configures the WhatsApp gateway client.
type Config struct {
	APIURL     string
	APIKey     string
	FromNumber string
	// HTTPClient overrides the default HTTP client (for testing).
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// New builds a WhatsApp gateway client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("whatsapp: api key required")
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("whatsapp: api url required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: sendTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		fromNumber: cfg.FromNumber,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

var _ channels.TextMessenger = (*Client)(nil)

// SendText dispatches a plain-text WhatsApp message.
func (c *Client) SendText(ctx context.Context, phone, body string) (*channels.DeliveryResult, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, fmt.Errorf("%w: empty phone", channels.ErrInvalidRecipient)
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("whatsapp: body required")
	}
	payload := map[string]any{
		"to":   phone,
		"body": body,
	}
	if c.fromNumber != "" {
		payload["from"] = c.fromNumber
	}
	return c.post(ctx, "/messages", payload, phone)
}

// SendTemplate dispatches a templated message. broadcastKey must be unique
// per logical send; the gateway deduplicates broadcasts by this name, so a
// reused key silently drops the later message.
func (c *Client) SendTemplate(ctx context.Context, phone, templateID string, params []string, broadcastKey string) (*channels.DeliveryResult, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, fmt.Errorf("%w: empty phone", channels.ErrInvalidRecipient)
	}
	if strings.TrimSpace(templateID) == "" {
		return nil, errors.New("whatsapp: template id required")
	}
	if strings.TrimSpace(broadcastKey) == "" {
		return nil, errors.New("whatsapp: broadcast key required")
	}
	payload := map[string]any{
		"to":             phone,
		"template_id":    templateID,
		"parameters":     params,
		"broadcast_name": broadcastKey,
	}
	if c.fromNumber != "" {
		payload["from"] = c.fromNumber
	}
	return c.post(ctx, "/templates/send", payload, phone)
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any, phone string) (*channels.DeliveryResult, error) {
	ctx, span := sendTracer.Start(ctx, "channels.whatsapp.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("outreach.to", channels.MaskPhone(phone)),
		attribute.String("outreach.path", path),
	)

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %v", channels.ErrChannelUnavailable, err)
		} else {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				result := decodeResult(raw)
				c.logger.Info("whatsapp message sent",
					"to", channels.MaskPhone(phone),
					"status", result.Status,
					"message_id", result.MessageID,
				)
				return result, nil
			}
			lastErr = statusError(resp.StatusCode, raw)
			if !retryable(resp.StatusCode) {
				break
			}
		}

		if attempt < maxAttempts {
			sleep := time.Duration(200+rand.Intn(300)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleep):
			}
		}
	}

	span.RecordError(lastErr)
	c.logger.Error("whatsapp send failed", "error", lastErr, "to", channels.MaskPhone(phone))
	return nil, lastErr
}

func decodeResult(raw []byte) *channels.DeliveryResult {
	result := &channels.DeliveryResult{
		Provider: "whatsapp",
		Status:   "accepted",
		Raw:      json.RawMessage(raw),
	}
	var parsed struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Data.ID != "" {
			result.MessageID = parsed.Data.ID
		} else {
			result.MessageID = parsed.ID
		}
		if parsed.Data.Status != "" {
			result.Status = parsed.Data.Status
		} else if parsed.Status != "" {
			result.Status = parsed.Status
		}
	}
	return result
}

func statusError(status int, raw []byte) error {
	detail := strings.TrimSpace(string(raw))
	if len(detail) > 256 {
		detail = detail[:256]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", channels.ErrRateLimited, status, detail)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", channels.ErrInvalidRecipient, status, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", channels.ErrChannelUnavailable, status, detail)
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}
