package indicator

import (
	"math"
	"strings"
)

var bullishKeywords = []string{
	"soar", "surge", "jump", "rally", "bull", "bullish", "high", "record", "gain",
	"adoption", "approve", "launch", "partnership", "growth", "positive", "buy",
	"accumulate", "upgrade", "success", "breakout", "moon", "profit",
}

var bearishKeywords = []string{
	"plunge", "drop", "crash", "bear", "bearish", "low", "loss", "ban", "hack",
	"stolen", "fraud", "regulation", "lawsuit", "crackdown", "negative", "sell",
	"dump", "fail", "bankruptcy", "panic", "fear", "risk", "crisis",
}

// Sentiment labels.
const (
	LabelExtremeFear  = "Extreme Fear"
	LabelFear         = "Fear"
	LabelNeutral      = "Neutral"
	LabelGreed        = "Greed"
	LabelExtremeGreed = "Extreme Greed"
)

// Sentiment is the aggregate mood of a batch of headlines.
type Sentiment struct {
	Score         int    `json:"score"` // -100..100
	Label         string `json:"label"`
	BullishCount  int    `json:"bullishCount"`
	BearishCount  int    `json:"bearishCount"`
	AnalyzedCount int    `json:"analyzedCount"`
}

func countMatches(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}

// AnalyzeSentiment scores headlines by keyword hits. A headline counts as
// bullish or bearish when its hits of one set strictly exceed the other;
// the score is the net count as a percentage of all headlines.
func AnalyzeSentiment(headlines []string) Sentiment {
	var res Sentiment
	res.AnalyzedCount = len(headlines)

	net := 0
	for _, h := range headlines {
		lower := strings.ToLower(h)
		bull := countMatches(lower, bullishKeywords)
		bear := countMatches(lower, bearishKeywords)
		switch {
		case bull > bear:
			res.BullishCount++
			net++
		case bear > bull:
			res.BearishCount++
			net--
		}
	}

	score := 0.0
	if len(headlines) > 0 {
		score = float64(net) / float64(len(headlines)) * 100
	}
	score = math.Max(-100, math.Min(100, score))

	switch {
	case score <= -60:
		res.Label = LabelExtremeFear
	case score <= -20:
		res.Label = LabelFear
	case score >= 60:
		res.Label = LabelExtremeGreed
	case score >= 20:
		res.Label = LabelGreed
	default:
		res.Label = LabelNeutral
	}
	// half-up rounding
	res.Score = int(math.Floor(score + 0.5))
	return res
}
