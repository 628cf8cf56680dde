package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"token-sentinel/internal/domain"
)

// FeedItem is a single social feed message.
type FeedItem struct {
	ID   string
	Text string
}

// FeedClient fetches new items from a social feed. Implementations exist
// per platform; the adapter only cares about message text.
type FeedClient interface {
	Fetch(ctx context.Context) ([]FeedItem, error)
}

// SocialFeedOptions configures the social feed adapter.
type SocialFeedOptions struct {
	Client       FeedClient
	PollInterval time.Duration // default 15s
	Logger       zerolog.Logger
}

// SocialFeedAdapter polls a social feed and emits message text as raw
// candidates. Address extraction happens downstream in the normalizer.
type SocialFeedAdapter struct {
	opts SocialFeedOptions
	log  zerolog.Logger

	lastID string
}

// NewSocialFeedAdapter creates a social feed adapter.
func NewSocialFeedAdapter(opts SocialFeedOptions) (*SocialFeedAdapter, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("social feed: client required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}

	return &SocialFeedAdapter{
		opts: opts,
		log:  opts.Logger.With().Str("component", "source_social").Logger(),
	}, nil
}

// Name identifies the adapter.
func (a *SocialFeedAdapter) Name() string { return string(domain.SourceSocialFeed) }

// Run polls the feed until the context is cancelled.
func (a *SocialFeedAdapter) Run(ctx context.Context, emit EmitFunc) error {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.poll(ctx, emit); err != nil {
				return err
			}
		}
	}
}

func (a *SocialFeedAdapter) poll(ctx context.Context, emit EmitFunc) error {
	items, err := a.opts.Client.Fetch(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("social feed fetch failed")
		return nil
	}

	// Feeds replay recent history in order, but IDs are opaque strings
	// with no comparable ordering. The cursor is positional: resume after
	// the last forwarded ID if it is still in the page, otherwise forward
	// the whole page and let downstream dedup absorb the overlap.
	start := 0
	if a.lastID != "" {
		for i := len(items) - 1; i >= 0; i-- {
			if items[i].ID == a.lastID {
				start = i + 1
				break
			}
		}
	}

	for _, item := range items[start:] {
		if item.ID != "" {
			a.lastID = item.ID
		}
		if item.Text == "" {
			continue
		}

		raw := domain.RawCandidate{
			Source:     domain.SourceSocialFeed,
			Payload:    []byte(item.Text),
			ObservedAt: time.Now().UTC(),
		}
		if err := emit(ctx, raw); err != nil {
			return err
		}
	}
	return nil
}
