package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clinicpulse/outreach/internal/channels"
	"github.com/clinicpulse/outreach/pkg/logging"
)

const callTimeout = 15 * time.Second

// Client initiates outbound AI-agent calls via the voice provider's REST API.
// The agent speaks openingLine first and uses contextBrief as its task
// instructions; the call result arrives later on the call-outcome webhook.
type Client struct {
	apiKey     string
	fromNumber string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// Config configures the outbound voice client.
type Config struct {
	APIURL     string
	APIKey     string
	FromNumber string
	// HTTPClient overrides the default HTTP client (for testing).
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// New creates a client for initiating outbound AI voice calls.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("voice: api key required")
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("voice: api url required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: callTimeout}
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

var _ channels.CallPlacer = (*Client)(nil)

type callRequest struct {
	PhoneNumber  string `json:"phone_number"`
	From         string `json:"from,omitempty"`
	OpeningLine  string `json:"first_sentence"`
	Task         string `json:"task"`
	RecordCall   bool   `json:"record"`
	AnswerDetect bool   `json:"answering_machine_detection"`
}

type callAPIResponse struct {
	Data struct {
		CallID string `json:"call_id"`
		Status string `json:"status"`
	} `json:"data"`
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// PlaceCall starts an outbound AI voice call to the patient.
func (c *Client) PlaceCall(ctx context.Context, phone, openingLine, contextBrief string) (*channels.CallHandle, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, fmt.Errorf("%w: empty phone", channels.ErrInvalidRecipient)
	}
	if strings.TrimSpace(contextBrief) == "" {
		return nil, errors.New("voice: context brief required")
	}

	body, err := json.Marshal(callRequest{
		PhoneNumber:  phone,
		From:         c.fromNumber,
		OpeningLine:  openingLine,
		Task:         contextBrief,
		RecordCall:   true,
		AnswerDetect: true,
	})
	if err != nil {
		return nil, fmt.Errorf("voice: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calls", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voice: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("voice: initiating outbound call",
		"to", channels.MaskPhone(phone),
		"opening_line", openingLine,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", channels.ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("voice: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("voice: API error", "status", resp.StatusCode, "body", string(raw))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: status %d", channels.ErrRateLimited, resp.StatusCode)
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
			return nil, fmt.Errorf("%w: status %d: %s", channels.ErrInvalidRecipient, resp.StatusCode, raw)
		default:
			return nil, fmt.Errorf("%w: status %d: %s", channels.ErrChannelUnavailable, resp.StatusCode, raw)
		}
	}

	var parsed callAPIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("voice: decode response: %w", err)
	}
	callID := parsed.Data.CallID
	if callID == "" {
		callID = parsed.CallID
	}
	status := parsed.Data.Status
	if status == "" {
		status = parsed.Status
	}
	if status == "" {
		status = "initiated"
	}

	c.logger.Info("voice: outbound call initiated",
		"call_id", callID,
		"to", channels.MaskPhone(phone),
	)

	return &channels.CallHandle{
		Provider: "voice",
		CallID:   callID,
		Status:   status,
		Raw:      json.RawMessage(raw),
	}, nil
}
