package notify

import (
	"fmt"
	"strings"
	"time"

	"token-sentinel/internal/domain"
)

// RenderMessage formats the alert text for a scored candidate.
func RenderMessage(sc *domain.ScoredCandidate) string {
	m := sc.Candidate.Metadata

	var b strings.Builder
	fmt.Fprintf(&b, "🎯 *NEW TOKEN DETECTED* %s\n\n", scoreEmoji(sc.Result.Score))

	name := "Unknown"
	if m.Name != nil && *m.Name != "" {
		name = *m.Name
	}
	symbol := "?"
	if m.Symbol != nil && *m.Symbol != "" {
		symbol = *m.Symbol
	}
	fmt.Fprintf(&b, "*%s* (%s)\n", name, symbol)
	fmt.Fprintf(&b, "📍 `%s`\n\n", truncateAddress(sc.Candidate.Address))

	fmt.Fprintf(&b, "📊 *Score:* %.1f/10 %s\n", sc.Result.Score, scoreEmoji(sc.Result.Score))
	fmt.Fprintf(&b, "💡 *Recommendation:* %s\n", sc.Result.Recommendation)
	fmt.Fprintf(&b, "🎚 *Confidence:* %.0f%%\n\n", sc.Result.Confidence*100)

	if m.PriceUSD != nil {
		fmt.Fprintf(&b, "💰 *Price:* %s\n", formatUSD(*m.PriceUSD))
	}
	if m.LiquidityUSD != nil {
		fmt.Fprintf(&b, "💧 *Liquidity:* %s\n", formatUSD(*m.LiquidityUSD))
	}
	if m.Volume24hUSD != nil {
		fmt.Fprintf(&b, "📈 *Volume 24h:* %s\n", formatUSD(*m.Volume24hUSD))
	}
	if m.AgeHours != nil {
		fmt.Fprintf(&b, "⏰ *Age:* %.1fh\n", *m.AgeHours)
	}
	b.WriteString("\n")

	if sc.Result.Rationale != "" {
		fmt.Fprintf(&b, "🔍 %s\n\n", sc.Result.Rationale)
	}

	if len(sc.Result.Risks) > 0 {
		b.WriteString("⚠️ *Risks:*\n")
		for i, risk := range sc.Result.Risks {
			if i == 2 {
				break
			}
			fmt.Fprintf(&b, "• %s\n", risk)
		}
		b.WriteString("\n")
	}

	b.WriteString("🔗 *Links:*\n")
	if m.PairAddress != nil && *m.PairAddress != "" {
		fmt.Fprintf(&b, "[Dexscreener](https://dexscreener.com/ethereum/%s)\n", *m.PairAddress)
	}
	fmt.Fprintf(&b, "[Etherscan](https://etherscan.io/token/%s)\n", sc.Candidate.Address)
	fmt.Fprintf(&b, "[Uniswap](https://app.uniswap.org/#/swap?outputCurrency=%s)\n\n", sc.Candidate.Address)

	fmt.Fprintf(&b, "⏱ %s | Source: %s", time.Now().UTC().Format("15:04:05"), sc.Candidate.Source)

	return b.String()
}

func scoreEmoji(score float64) string {
	switch {
	case score >= 8:
		return "🔥"
	case score >= 7:
		return "🚀"
	case score >= 5:
		return "👀"
	default:
		return "❄️"
	}
}

func formatUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.2fK", v/1e3)
	case v >= 0.01:
		return fmt.Sprintf("$%.2f", v)
	default:
		return fmt.Sprintf("$%.8f", v)
	}
}

func truncateAddress(address string) string {
	if len(address) <= 13 {
		return address
	}
	return address[:8] + "..." + address[len(address)-4:]
}
