package auth

import (
	"context"
	"time"
)

const (
	DefaultSendCooldown = 60 * time.Second
	DefaultDailySendCap = 10

	// dailyWindow is a trailing window, not a calendar day.
	dailyWindow = 24 * time.Hour
)

// SendPolicy throttles how often a capability token may be mailed to one user.
type SendPolicy struct {
	Cooldown time.Duration
	DailyCap int
}

func (p SendPolicy) withDefaults() SendPolicy {
	if p.Cooldown <= 0 {
		p.Cooldown = DefaultSendCooldown
	}
	if p.DailyCap <= 0 {
		p.DailyCap = DefaultDailySendCap
	}
	return p
}

// Check returns ErrRateLimited when userID received a token within the
// cooldown or already reached the cap in the trailing 24 hours.
func (p SendPolicy) Check(ctx context.Context, ledger *CapabilityLedger, userID string, now time.Time) error {
	p = p.withDefaults()

	latest, ok, err := ledger.LatestIssuedAt(ctx, userID)
	if err != nil {
		return err
	}
	if ok && now.Sub(latest) < p.Cooldown {
		return ErrRateLimited
	}

	sent, err := ledger.IssuedSince(ctx, userID, now.Add(-dailyWindow))
	if err != nil {
		return err
	}
	if sent >= int64(p.DailyCap) {
		return ErrRateLimited
	}
	return nil
}
