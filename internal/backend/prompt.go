package backend

import (
	"fmt"
	"strings"

	"token-sentinel/internal/domain"
)

// buildPrompt renders the scoring prompt from candidate metadata and the
// suspicious-pattern indicators surfaced by the scanner.
func buildPrompt(req domain.ScoreRequest) string {
	m := req.Candidate.Metadata

	var sb strings.Builder
	sb.WriteString("Analyze this newly observed ERC20 token and score its short-term speculative potential from 0 to 10.\n\n")

	sb.WriteString("=== TOKEN ===\n")
	fmt.Fprintf(&sb, "Name: %s\n", strOrNA(m.Name))
	fmt.Fprintf(&sb, "Symbol: %s\n", strOrNA(m.Symbol))
	fmt.Fprintf(&sb, "Address: %s\n", req.Candidate.Address)
	fmt.Fprintf(&sb, "Source: %s\n", req.Candidate.Source)
	if m.AgeHours != nil {
		fmt.Fprintf(&sb, "Age: %.1f hours\n", *m.AgeHours)
	} else {
		sb.WriteString("Age: not available\n")
	}

	sb.WriteString("\n=== MARKET ===\n")
	fmt.Fprintf(&sb, "Price: %s\n", usdOrNA(m.PriceUSD, "%.8f"))
	fmt.Fprintf(&sb, "Liquidity: %s\n", usdOrNA(m.LiquidityUSD, "%.2f"))
	fmt.Fprintf(&sb, "Volume 24h: %s\n", usdOrNA(m.Volume24hUSD, "%.2f"))
	if m.PriceChange24h != nil {
		fmt.Fprintf(&sb, "Change 24h: %.2f%%\n", *m.PriceChange24h)
	}
	if m.TotalSupply != nil {
		fmt.Fprintf(&sb, "Total supply: %.0f\n", *m.TotalSupply)
	}
	if m.HolderCount != nil {
		fmt.Fprintf(&sb, "Holders: %d\n", *m.HolderCount)
	}

	sb.WriteString("\n=== WARNING SIGNALS ===\n")
	if len(req.Indicators) == 0 {
		sb.WriteString("none detected\n")
	} else {
		for _, ind := range req.Indicators {
			sb.WriteString("- ")
			sb.WriteString(ind)
			sb.WriteString("\n")
		}
	}

	if snippet := strings.TrimSpace(req.Candidate.Snippet); snippet != "" {
		sb.WriteString("\n=== CONTEXT ===\n")
		sb.WriteString(snippet)
		sb.WriteString("\n")
	}

	sb.WriteString(`
Reply ONLY with JSON in this exact shape (no markdown, no backticks):
{
  "score": 7.5,
  "reasoning": "2-3 sentence explanation of the score",
  "risks": ["main risk 1", "main risk 2"],
  "opportunities": ["opportunity 1", "opportunity 2"],
  "recommendation": "BUY",
  "confidence": 0.85
}

Valid recommendations: BUY (score >= 7), HOLD (score 5-6.9), AVOID (score < 5), RESEARCH (insufficient data).
`)

	return sb.String()
}

func strOrNA(s *string) string {
	if s == nil || *s == "" {
		return "not available"
	}
	return *s
}

func usdOrNA(v *float64, format string) string {
	if v == nil {
		return "not available"
	}
	return "$" + fmt.Sprintf(format, *v)
}
