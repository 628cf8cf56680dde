package notify

import (
	"context"

	"github.com/rs/zerolog"

	"token-sentinel/internal/domain"
)

// NoopNotifier logs alerts instead of delivering them. Used in dry-run mode
// and when no Telegram credentials are configured.
type NoopNotifier struct {
	log zerolog.Logger
}

// NewNoopNotifier creates a log-only notifier.
func NewNoopNotifier(logger zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger.With().Str("component", "notify_noop").Logger()}
}

// Dispatch logs the alert and returns nil.
func (n *NoopNotifier) Dispatch(_ context.Context, sc *domain.ScoredCandidate) error {
	n.log.Info().
		Str("address", sc.Candidate.Address).
		Float64("score", sc.Result.Score).
		Str("recommendation", string(sc.Result.Recommendation)).
		Msg("alert suppressed (noop notifier)")
	return nil
}
