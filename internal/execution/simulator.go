package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"crypto-signals/internal/model"

	"github.com/shopspring/decimal"
)

// SimulatorFeeRate is the taker fee charged by the simulator (0.1%).
var SimulatorFeeRate = decimal.NewFromFloat(0.001)

// DefaultSimulatorBalances is the starting test account.
func DefaultSimulatorBalances() map[string]float64 {
	return map[string]float64{
		"USDT": 100000,
		"BTC":  0.5,
		"ETH":  5,
		"SOL":  50,
	}
}

// ErrInsufficientBalance is returned when the simulated account cannot cover an order.
var ErrInsufficientBalance = errors.New("insufficient balance")

// SplitSymbol returns the base and quote asset of a spot symbol. The quote
// is USDT when the symbol ends with it, otherwise its last four characters.
func SplitSymbol(symbol string) (base, quote string) {
	if strings.HasSuffix(symbol, "USDT") {
		quote = "USDT"
	} else if len(symbol) > 4 {
		quote = symbol[len(symbol)-4:]
	} else {
		return symbol, ""
	}
	return strings.TrimSuffix(symbol, quote), quote
}

// Simulator fills market orders at the current market price against an
// in-memory account. Used when the trading mode is "test".
type Simulator struct {
	mu       sync.Mutex
	md       model.MarketData
	balances map[string]decimal.Decimal
	orderSeq int64
	now      func() time.Time
}

// NewSimulator creates a simulator priced by md with the given starting balances.
func NewSimulator(md model.MarketData, balances map[string]float64) *Simulator {
	s := &Simulator{
		md:       md,
		balances: make(map[string]decimal.Decimal, len(balances)),
		orderSeq: 1000,
		now:      time.Now,
	}
	for asset, v := range balances {
		s.balances[asset] = decimal.NewFromFloat(v)
	}
	return s
}

func (s *Simulator) Mode() string { return string(ModeTest) }

// Balances returns a snapshot of all balances, sorted by asset.
func (s *Simulator) Balances(ctx context.Context) ([]model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Balance, 0, len(s.balances))
	for asset, v := range s.balances {
		out = append(out, model.Balance{Asset: asset, Free: v.InexactFloat64()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// MarketBuyByQuote spends quoteAmount; quantity = (quote - fee) / price.
func (s *Simulator) MarketBuyByQuote(ctx context.Context, symbol string, quoteAmount float64, clientOrderID string) (model.OrderResult, error) {
	price, err := s.md.Price(ctx, symbol)
	if err != nil {
		return model.OrderResult{}, &model.MarketDataError{Symbol: symbol, Err: err}
	}
	if price <= 0 {
		return model.OrderResult{}, fmt.Errorf("simulator: invalid price %v for %s", price, symbol)
	}
	base, quote := SplitSymbol(symbol)
	q := decimal.NewFromFloat(quoteAmount)
	p := decimal.NewFromFloat(price)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[quote].LessThan(q) {
		return model.OrderResult{}, fmt.Errorf("%w: %s", ErrInsufficientBalance, quote)
	}
	fee := q.Mul(SimulatorFeeRate)
	qty := q.Sub(fee).Div(p)

	s.balances[quote] = s.balances[quote].Sub(q)
	s.balances[base] = s.balances[base].Add(qty)

	res := s.fill(symbol, model.SideBuy, clientOrderID, qty, q, p, fee)
	log.Printf("[simulator] BUY %s qty=%s quote=%s price=%s order=%s", symbol, qty.StringFixed(8), q.StringFixed(2), p.String(), res.OrderID)
	return res, nil
}

// MarketSellByQty sells qty; the account is credited qty*price - fee.
func (s *Simulator) MarketSellByQty(ctx context.Context, symbol string, qty float64, clientOrderID string) (model.OrderResult, error) {
	price, err := s.md.Price(ctx, symbol)
	if err != nil {
		return model.OrderResult{}, &model.MarketDataError{Symbol: symbol, Err: err}
	}
	base, quote := SplitSymbol(symbol)
	q := decimal.NewFromFloat(qty)
	p := decimal.NewFromFloat(price)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[base].LessThan(q) {
		return model.OrderResult{}, fmt.Errorf("%w: %s", ErrInsufficientBalance, base)
	}
	gross := q.Mul(p)
	fee := gross.Mul(SimulatorFeeRate)

	s.balances[base] = s.balances[base].Sub(q)
	s.balances[quote] = s.balances[quote].Add(gross.Sub(fee))

	res := s.fill(symbol, model.SideSell, clientOrderID, q, gross, p, fee)
	log.Printf("[simulator] SELL %s qty=%s quote=%s price=%s order=%s", symbol, q.String(), gross.StringFixed(2), p.String(), res.OrderID)
	return res, nil
}

// fill builds the exchange-shaped report. Caller holds s.mu.
func (s *Simulator) fill(symbol string, side model.Side, clientOrderID string, qty, quote, price, fee decimal.Decimal) model.OrderResult {
	id := fmt.Sprintf("SIM%d", s.orderSeq)
	s.orderSeq++
	return model.OrderResult{
		OrderID:             id,
		ClientOrderID:       clientOrderID,
		Symbol:              symbol,
		Side:                side,
		Status:              "FILLED",
		ExecutedQty:         qty.InexactFloat64(),
		CummulativeQuoteQty: quote.InexactFloat64(),
		Fills: []model.Fill{{
			Price:      price.InexactFloat64(),
			Qty:        qty.InexactFloat64(),
			Commission: fee.InexactFloat64(),
		}},
		TransactTime: s.now(),
	}
}
