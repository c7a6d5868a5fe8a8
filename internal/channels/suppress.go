package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicpulse/outreach/pkg/logging"
)

// SuppressedMessenger is the simulate-only operating mode: every send path is
// short-circuited before the provider while the caller still receives a
// DeliveryResult, so state transitions, logging and idempotency flags run
// exactly as in production.
type SuppressedMessenger struct {
	logger *logging.Logger
}

// SuppressedCallPlacer is the voice-side counterpart of SuppressedMessenger.
type SuppressedCallPlacer struct {
	logger *logging.Logger
}

// SuppressConfig controls the simulate-only wrappers.
type SuppressConfig struct {
	Enabled bool
	Logger  *logging.Logger
}

// WrapTextMessenger returns the inner messenger unchanged unless suppression
// is enabled, in which case all sends become logged no-ops.
func WrapTextMessenger(inner TextMessenger, cfg SuppressConfig) TextMessenger {
	if !cfg.Enabled {
		return inner
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	cfg.Logger.Info("outbound text suppression enabled; messages will be simulated")
	return &SuppressedMessenger{logger: cfg.Logger}
}

// WrapCallPlacer returns the inner placer unchanged unless suppression is
// enabled.
func WrapCallPlacer(inner CallPlacer, cfg SuppressConfig) CallPlacer {
	if !cfg.Enabled {
		return inner
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	cfg.Logger.Info("outbound voice suppression enabled; calls will be simulated")
	return &SuppressedCallPlacer{logger: cfg.Logger}
}

func (s *SuppressedMessenger) SendText(ctx context.Context, phone, body string) (*DeliveryResult, error) {
	s.logger.Info("suppressed text send", "to", MaskPhone(phone), "body_len", len(body))
	return &DeliveryResult{
		Provider:   "suppressed",
		MessageID:  fmt.Sprintf("sim-%d", time.Now().UnixNano()),
		Status:     "simulated",
		Suppressed: true,
	}, nil
}

func (s *SuppressedMessenger) SendTemplate(ctx context.Context, phone, templateID string, params []string, broadcastKey string) (*DeliveryResult, error) {
	s.logger.Info("suppressed template send",
		"to", MaskPhone(phone),
		"template_id", templateID,
		"broadcast_key", broadcastKey,
	)
	return &DeliveryResult{
		Provider:   "suppressed",
		MessageID:  fmt.Sprintf("sim-%d", time.Now().UnixNano()),
		Status:     "simulated",
		Suppressed: true,
	}, nil
}

func (s *SuppressedCallPlacer) PlaceCall(ctx context.Context, phone, openingLine, contextBrief string) (*CallHandle, error) {
	s.logger.Info("suppressed voice call", "to", MaskPhone(phone), "opening_line", openingLine)
	return &CallHandle{
		Provider:   "suppressed",
		CallID:     fmt.Sprintf("sim-call-%d", time.Now().UnixNano()),
		Status:     "simulated",
		Suppressed: true,
	}, nil
}
