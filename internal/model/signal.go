package model

import "time"

// SnapshotItem is one liquidated asset of a panic sell.
type SnapshotItem struct {
	Asset     string  `json:"asset"`
	Quantity  float64 `json:"quantity"`
	Symbol    string  `json:"symbol"`
	USDTValue float64 `json:"usdtValue"`
	OrderID   string  `json:"orderId"`
}

// PanicSnapshot records what a panic sell liquidated so it can be bought back.
type PanicSnapshot struct {
	ID             int64          `json:"id"`
	UserID         string         `json:"userId"`
	Items          []SnapshotItem `json:"snapshotData"`
	TotalUSDTValue float64        `json:"totalUsdtValue"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// F4SignalRecord is a persisted F4 evaluation of one symbol.
type F4SignalRecord struct {
	ID                   int64     `json:"id"`
	Symbol               string    `json:"symbol"`
	Timeframe            string    `json:"timeframe"`
	Signal               string    `json:"signal"`
	SMCStructure         string    `json:"smcStructure"`
	WTStatus             string    `json:"wtStatus"`
	ConfluenceScore      int       `json:"confluenceScore"`
	ActionRecommendation string    `json:"actionRecommendation"`
	Price                float64   `json:"price"`
	F4                   float64   `json:"f4"`
	F4Fibo               float64   `json:"f4Fibo"`
	WT1                  float64   `json:"wt1"`
	WT2                  float64   `json:"wt2"`
	CreatedAt            time.Time `json:"createdAt"`
}

// TelegramSignal is a trade call scraped from a signal channel.
type TelegramSignal struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol" validate:"required,uppercase"`
	Direction  string    `json:"direction" validate:"omitempty,oneof=LONG SHORT"`
	Entry      float64   `json:"entry" validate:"required,gt=0"`
	Targets    []float64 `json:"targets,omitempty" validate:"dive,gt=0"`
	StopLoss   float64   `json:"stop_loss,omitempty" validate:"gte=0"`
	Exchange   string    `json:"exchange,omitempty"`
	PairType   string    `json:"pair_type,omitempty" validate:"omitempty,oneof=SPOT FUTURES"`
	RawMessage string    `json:"raw_message,omitempty"`
}
