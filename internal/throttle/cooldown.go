package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicpulse/outreach/internal/channels"
	"github.com/clinicpulse/outreach/pkg/logging"
)

// Cooldown caps outbound messages per phone number within a sliding window.
// Overlapping triggers and webhook races can legitimately target the same
// patient in quick succession; the cap keeps a burst from reaching them.
// A nil Cooldown always allows.
type Cooldown struct {
	rdb    *redis.Client
	window time.Duration
	max    int
	logger *logging.Logger
}

// NewCooldown creates a per-phone send cap. max <= 0 disables the cap.
func NewCooldown(rdb *redis.Client, window time.Duration, max int, logger *logging.Logger) *Cooldown {
	if rdb == nil || max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cooldown{rdb: rdb, window: window, max: max, logger: logger}
}

// Allow records one send for the phone and reports whether it is within the
// cap. Redis errors fail open: blocking patient outreach on a cache outage
// would be worse than an occasional extra message.
func (c *Cooldown) Allow(ctx context.Context, phone string) bool {
	if c == nil {
		return true
	}
	key := "outreach:cooldown:" + phone
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		c.logger.Warn("cooldown check failed, allowing send", "error", err, "phone", channels.MaskPhone(phone))
		return true
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, c.window).Err(); err != nil {
			c.logger.Warn("cooldown expire failed", "error", err, "phone", channels.MaskPhone(phone))
		}
	}
	if count > int64(c.max) {
		c.logger.Warn("cooldown cap reached, suppressing send",
			"phone", channels.MaskPhone(phone),
			"count", count,
			"max", c.max,
		)
		return false
	}
	return true
}

// ThrottledMessenger applies the cooldown in front of a TextMessenger.
type ThrottledMessenger struct {
	inner    channels.TextMessenger
	cooldown *Cooldown
}

// WrapTextMessenger returns the inner messenger unchanged when no cooldown is
// configured.
func WrapTextMessenger(inner channels.TextMessenger, cooldown *Cooldown) channels.TextMessenger {
	if cooldown == nil {
		return inner
	}
	return &ThrottledMessenger{inner: inner, cooldown: cooldown}
}

func (t *ThrottledMessenger) SendText(ctx context.Context, phone, body string) (*channels.DeliveryResult, error) {
	if !t.cooldown.Allow(ctx, phone) {
		return nil, fmt.Errorf("%w: per-phone cooldown cap", channels.ErrRateLimited)
	}
	return t.inner.SendText(ctx, phone, body)
}

func (t *ThrottledMessenger) SendTemplate(ctx context.Context, phone, templateID string, params []string, broadcastKey string) (*channels.DeliveryResult, error) {
	if !t.cooldown.Allow(ctx, phone) {
		return nil, fmt.Errorf("%w: per-phone cooldown cap", channels.ErrRateLimited)
	}
	return t.inner.SendTemplate(ctx, phone, templateID, params, broadcastKey)
}
