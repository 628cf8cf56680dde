// Package normalize validates raw source events and canonicalizes them
// into pipeline candidates.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"token-sentinel/internal/domain"
)

// ErrValidation marks a malformed raw candidate. Such events are dropped
// and counted, never retried.
var ErrValidation = errors.New("validation failed")

var addressPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

// chainPayload is the JSON shape emitted by the chain stream adapter.
type chainPayload struct {
	Address string `json:"address"`
	TxHash  string `json:"txHash"`
	Block   uint64 `json:"blockNumber"`
}

// marketPayload is the JSON shape emitted by the market scan adapter.
type marketPayload struct {
	TokenAddress string `json:"tokenAddress"`
	PairAddress  string `json:"pairAddress"`
}

// Normalizer converts RawCandidate events into canonical Candidates.
// Stateless; safe for concurrent use.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize validates a raw event and produces a canonical Candidate.
// The canonical identifier is the EIP-55 checksummed contract address.
// Returns an error wrapping ErrValidation when the payload is malformed
// or carries no valid address.
func (n *Normalizer) Normalize(raw domain.RawCandidate) (domain.Candidate, error) {
	if !raw.Source.IsValid() {
		return domain.Candidate{}, fmt.Errorf("%w: unknown source %q", ErrValidation, raw.Source)
	}
	if len(raw.Payload) == 0 {
		return domain.Candidate{}, fmt.Errorf("%w: empty payload from %s", ErrValidation, raw.Source)
	}

	var (
		address string
		snippet string
		err     error
	)

	switch raw.Source {
	case domain.SourceChainStream:
		address, err = parseChainPayload(raw.Payload)
	case domain.SourceMarketScan:
		address, err = parseMarketPayload(raw.Payload)
	case domain.SourceSocialFeed:
		address, snippet, err = parseSocialPayload(raw.Payload)
	}
	if err != nil {
		return domain.Candidate{}, err
	}

	return domain.Candidate{
		Address:     common.HexToAddress(address).Hex(),
		Source:      raw.Source,
		FirstSeenAt: raw.ObservedAt,
		Snippet:     snippet,
	}, nil
}

func parseChainPayload(payload []byte) (string, error) {
	var p chainPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("%w: chain payload: %v", ErrValidation, err)
	}
	if !common.IsHexAddress(p.Address) {
		return "", fmt.Errorf("%w: invalid contract address %q", ErrValidation, p.Address)
	}
	return p.Address, nil
}

func parseMarketPayload(payload []byte) (string, error) {
	var p marketPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("%w: market payload: %v", ErrValidation, err)
	}
	if !common.IsHexAddress(p.TokenAddress) {
		return "", fmt.Errorf("%w: invalid token address %q", ErrValidation, p.TokenAddress)
	}
	return p.TokenAddress, nil
}

// parseSocialPayload extracts the first Ethereum address mentioned in a
// free-text post. The surrounding text is kept as the candidate snippet.
func parseSocialPayload(payload []byte) (address, snippet string, err error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "", "", fmt.Errorf("%w: blank social post", ErrValidation)
	}

	match := addressPattern.FindString(text)
	if match == "" || !common.IsHexAddress(match) {
		return "", "", fmt.Errorf("%w: no contract address in social post", ErrValidation)
	}

	// Truncate on a rune boundary; a byte slice could split a multi-byte
	// character and leave invalid UTF-8 in the snippet.
	const maxSnippet = 280
	if runes := []rune(text); len(runes) > maxSnippet {
		text = string(runes[:maxSnippet])
	}
	return match, text, nil
}
