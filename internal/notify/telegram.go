package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/storage"
)

// ErrRateLimited is returned when the hourly notification cap is reached.
var ErrRateLimited = errors.New("notification rate limit reached")

// Options configures a TelegramNotifier.
type Options struct {
	BotToken    string
	ChatID      string
	BaseURL     string        // default https://api.telegram.org
	Timeout     time.Duration // default 10s
	HourlyLimit int           // max notifications per hour, default 20
	Alerts      storage.AlertStore
	Logger      zerolog.Logger
}

// TelegramNotifier pushes alert messages through the Telegram Bot API and
// records each delivered alert. Implements gate.Notifier.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	alerts   storage.AlertStore
	log      zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(opts Options) (*TelegramNotifier, error) {
	if opts.BotToken == "" || opts.ChatID == "" {
		return nil, errors.New("notify: bot token and chat id required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HourlyLimit <= 0 {
		opts.HourlyLimit = 20
	}

	return &TelegramNotifier{
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Hour/time.Duration(opts.HourlyLimit)), opts.HourlyLimit),
		alerts:   opts.Alerts,
		log:      opts.Logger.With().Str("component", "notify_telegram").Logger(),
	}, nil
}

// Dispatch sends the alert message and records it in the alert store.
func (n *TelegramNotifier) Dispatch(ctx context.Context, sc *domain.ScoredCandidate) error {
	if !n.limiter.Allow() {
		n.log.Warn().
			Str("address", sc.Candidate.Address).
			Msg("hourly notification cap reached, alert dropped")
		return ErrRateLimited
	}

	message := RenderMessage(sc)

	if err := n.sendMessage(ctx, message); err != nil {
		return err
	}

	n.log.Info().
		Str("address", sc.Candidate.Address).
		Float64("score", sc.Result.Score).
		Str("recommendation", string(sc.Result.Recommendation)).
		Msg("alert delivered")

	if n.alerts != nil {
		record := &domain.AlertRecord{
			Address:        sc.Candidate.Address,
			Symbol:         symbolOf(sc),
			Score:          sc.Result.Score,
			Recommendation: sc.Result.Recommendation,
			Message:        message,
			SentAt:         time.Now().UTC(),
		}
		if err := n.alerts.Insert(ctx, record); err != nil {
			// Delivery already happened; losing the audit row is not fatal.
			n.log.Error().Err(err).
				Str("address", sc.Candidate.Address).
				Msg("failed to record alert")
		}
	}

	return nil
}

func (n *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return errors.New("telegram returned ok=false")
		}
	}

	return nil
}

func symbolOf(sc *domain.ScoredCandidate) string {
	if sc.Candidate.Metadata.Symbol != nil {
		return *sc.Candidate.Metadata.Symbol
	}
	return ""
}
