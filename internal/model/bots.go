package model

import "time"

// DcaStatus is the lifecycle state of a DCA bot. COMPLETED and CANCELLED are terminal.
type DcaStatus string

const (
	DcaActive    DcaStatus = "ACTIVE"
	DcaPaused    DcaStatus = "PAUSED"
	DcaCompleted DcaStatus = "COMPLETED"
	DcaCancelled DcaStatus = "CANCELLED"
)

// DcaBot accumulates a position with fixed quote-sized buys.
// AveragePrice == TotalInvested / TotalBoughtQty whenever TotalBoughtQty > 0.
type DcaBot struct {
	ID                int64      `json:"id"`
	UserID            string     `json:"userId"`
	Symbol            string     `json:"symbol"`
	Amount            float64    `json:"amount"` // quote currency per buy
	IntervalHours     float64    `json:"intervalHours"`
	TakeProfitPercent *float64   `json:"takeProfitPercent,omitempty"`
	TotalInvested     float64    `json:"totalInvested"`
	TotalBoughtQty    float64    `json:"totalBoughtQty"`
	AveragePrice      float64    `json:"averagePrice"`
	Status            DcaStatus  `json:"status"`
	LastRunAt         *time.Time `json:"lastRunAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Due reports whether the bot's interval has elapsed at now.
func (b *DcaBot) Due(now time.Time) bool {
	if b.LastRunAt == nil {
		return true
	}
	next := b.LastRunAt.Add(time.Duration(b.IntervalHours * float64(time.Hour)))
	return !now.Before(next)
}

// TrailingStatus is the lifecycle state of a trailing stop.
type TrailingStatus string

const (
	TrailingActive    TrailingStatus = "ACTIVE"
	TrailingExecuted  TrailingStatus = "EXECUTED"
	TrailingCancelled TrailingStatus = "CANCELLED"
)

// TrailingStop sells Quantity once price falls CallbackRate percent below
// the highest price seen. HighestPrice never decreases while ACTIVE.
type TrailingStop struct {
	ID              int64          `json:"id"`
	UserID          string         `json:"userId"`
	Symbol          string         `json:"symbol"`
	Quantity        float64        `json:"quantity"`
	EntryPrice      float64        `json:"entryPrice"`
	HighestPrice    float64        `json:"highestPrice"`
	CallbackRate    float64        `json:"callbackRate"` // percent
	ActivationPrice *float64       `json:"activationPrice,omitempty"`
	Status          TrailingStatus `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// StopPrice returns HighestPrice * (1 - CallbackRate/100).
func (s *TrailingStop) StopPrice() float64 {
	return s.HighestPrice * (1 - s.CallbackRate/100)
}

// Armed reports whether the activation price (if any) has been reached.
func (s *TrailingStop) Armed() bool {
	return s.ActivationPrice == nil || s.HighestPrice >= *s.ActivationPrice
}
