package signals

import (
	"regexp"
	"strconv"
	"time"

	"crypto-signals/internal/model"
)

var (
	reCashtag = regexp.MustCompile(`\$([A-Z]{3,10})`)
	rePair    = regexp.MustCompile(`([A-Z]{3,10})/USDT`)
	reShort   = regexp.MustCompile(`(?i)\bSHORT\b`)
	reEntry   = regexp.MustCompile(`(?i)Entry[:\s]+([0-9.]+)`)
	reTarget  = regexp.MustCompile(`(?i)(?:Target|TP)[:\s]*([0-9.]+)`)
	reStop    = regexp.MustCompile(`(?i)(?:Stop|SL)[:\s]+([0-9.]+)`)
	reFutures = regexp.MustCompile(`(?i)\bFUTURES?\b`)
	reBinance = regexp.MustCompile(`(?i)\bBINANCE\b`)
)

const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"

	PairSpot    = "SPOT"
	PairFutures = "FUTURES"

	defaultExchange = "MEXC"
)

// ParseMessage extracts a signal from a channel message. ok is false unless
// the message names a symbol, an entry price and at least one target.
func ParseMessage(text string, now time.Time) (sig model.TelegramSignal, ok bool) {
	sig = model.TelegramSignal{
		Timestamp:  now.UTC(),
		RawMessage: text,
		Direction:  DirectionLong,
		Exchange:   defaultExchange,
		PairType:   PairSpot,
	}

	if m := reCashtag.FindStringSubmatch(text); m != nil {
		sig.Symbol = m[1] + "USDT"
	} else if m := rePair.FindStringSubmatch(text); m != nil {
		sig.Symbol = m[1] + "USDT"
	}

	if reShort.MatchString(text) {
		sig.Direction = DirectionShort
	}
	if m := reEntry.FindStringSubmatch(text); m != nil {
		sig.Entry = parseNumber(m[1])
	}
	for _, m := range reTarget.FindAllStringSubmatch(text, -1) {
		if v := parseNumber(m[1]); v > 0 {
			sig.Targets = append(sig.Targets, v)
		}
	}
	if m := reStop.FindStringSubmatch(text); m != nil {
		sig.StopLoss = parseNumber(m[1])
	}
	if reFutures.MatchString(text) {
		sig.PairType = PairFutures
	}
	if reBinance.MatchString(text) {
		sig.Exchange = "BINANCE"
	}

	return sig, sig.Symbol != "" && sig.Entry > 0 && len(sig.Targets) > 0
}

// parseNumber returns 0 for strings like "." or "1.2.3".
func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
