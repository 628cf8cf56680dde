package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"token-sentinel/internal/domain"
)

// ChainStreamOptions configures the websocket chain-event adapter.
type ChainStreamOptions struct {
	Endpoint     string
	PingInterval time.Duration // default 30s
	ReadTimeout  time.Duration // default 60s
	WriteTimeout time.Duration // default 10s
	Logger       zerolog.Logger
}

// ChainStreamAdapter consumes new-token events from a websocket feed of
// on-chain pair creations. Each text frame is forwarded verbatim as a raw
// candidate payload; reconnects are handled by the supervisor restarting
// the adapter.
type ChainStreamAdapter struct {
	opts ChainStreamOptions
	log  zerolog.Logger
}

// NewChainStreamAdapter creates a chain stream adapter.
func NewChainStreamAdapter(opts ChainStreamOptions) (*ChainStreamAdapter, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("chain stream: endpoint required")
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	return &ChainStreamAdapter{
		opts: opts,
		log:  opts.Logger.With().Str("component", "source_chain").Logger(),
	}, nil
}

// Name identifies the adapter.
func (a *ChainStreamAdapter) Name() string { return string(domain.SourceChainStream) }

// Run connects to the websocket endpoint and forwards frames until the
// connection breaks or the context is cancelled.
func (a *ChainStreamAdapter) Run(ctx context.Context, emit EmitFunc) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, a.opts.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	a.log.Info().Str("endpoint", a.opts.Endpoint).Msg("chain stream connected")

	// Close the connection when the context is cancelled so ReadMessage
	// unblocks promptly.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	go a.pingLoop(ctx, conn)

	for {
		conn.SetReadDeadline(time.Now().Add(a.opts.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("websocket read: %w", err)
		}

		raw := domain.RawCandidate{
			Source:     domain.SourceChainStream,
			Payload:    message,
			ObservedAt: time.Now().UTC(),
		}
		if err := emit(ctx, raw); err != nil {
			return err
		}
	}
}

func (a *ChainStreamAdapter) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(a.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Connection is likely dead, the read loop will surface it.
				return
			}
		}
	}
}
