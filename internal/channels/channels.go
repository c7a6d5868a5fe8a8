package channels

import (
	"context"
	"encoding/json"
	"errors"
)

// Sentinel errors surfaced by channel adapters. The orchestration jobs log
// these per item and move on; retry happens implicitly on the next run.
var (
	// ErrChannelUnavailable covers provider outages, network failures and
	// missing credentials.
	ErrChannelUnavailable = errors.New("channels: channel unavailable")
	// ErrInvalidRecipient covers rejected or malformed destination numbers.
	ErrInvalidRecipient = errors.New("channels: invalid recipient")
	// ErrRateLimited covers provider throttling and the local cooldown guard.
	ErrRateLimited = errors.New("channels: rate limited")
)

// DeliveryResult describes the provider's acceptance of an outbound message.
type DeliveryResult struct {
	Provider   string          `json:"provider"`
	MessageID  string          `json:"message_id,omitempty"`
	Status     string          `json:"status"`
	Suppressed bool            `json:"suppressed,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// CallHandle identifies an outbound call accepted by the voice provider. The
// call outcome arrives later on the webhook, correlated by CallID or phone.
type CallHandle struct {
	Provider   string          `json:"provider"`
	CallID     string          `json:"call_id,omitempty"`
	Status     string          `json:"status"`
	Suppressed bool            `json:"suppressed,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// TextMessenger sends WhatsApp messages. BroadcastKey must be unique per
// logical send so provider-side deduplication cannot drop a legitimate later
// message to the same number.
type TextMessenger interface {
	SendText(ctx context.Context, phone, body string) (*DeliveryResult, error)
	SendTemplate(ctx context.Context, phone, templateID string, params []string, broadcastKey string) (*DeliveryResult, error)
}

// CallPlacer initiates outbound AI voice calls.
type CallPlacer interface {
	PlaceCall(ctx context.Context, phone, openingLine, contextBrief string) (*CallHandle, error)
}
