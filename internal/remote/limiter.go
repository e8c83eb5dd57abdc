package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tonimelisma/flipper-sync/internal/config"
)

// burstMultiplier sizes the token bucket burst relative to the per-second
// rate so a short idle period can be spent on the next payload.
const burstMultiplier = 2

// Limiter caps aggregate payload throughput on the link. A nil *Limiter is
// valid and unlimited.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter builds a limiter from a rate such as "4KB/s". It returns nil
// for "0" or "" (unlimited).
func NewLimiter(bandwidthLimit string, logger *slog.Logger) (*Limiter, error) {
	bytesPerSec, err := ParseRate(bandwidthLimit)
	if err != nil {
		return nil, err
	}

	if bytesPerSec == 0 {
		return nil, nil //nolint:nilnil // nil limiter = unlimited
	}

	burst := int(bytesPerSec) * burstMultiplier

	logger.Info("remote: bandwidth limiter created",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return &Limiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}, nil
}

// ParseRate parses "5MB/s", "100KB/s", "0" into bytes per second.
func ParseRate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	normalized := s
	if strings.HasSuffix(strings.ToLower(normalized), "/s") {
		normalized = normalized[:len(normalized)-len("/s")]
	}

	n, err := config.ParseSize(normalized)
	if err != nil {
		return 0, fmt.Errorf("remote: invalid bandwidth rate %q: %w", s, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("remote: invalid bandwidth rate %q: must be non-negative", s)
	}

	return n, nil
}

// WaitN blocks until n payload bytes may cross the link. Requests larger
// than the burst are split, since rate.Limiter rejects them whole.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if l == nil {
		return nil
	}

	burst := l.limiter.Burst()

	for n > 0 {
		take := min(n, burst)

		if err := l.limiter.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
