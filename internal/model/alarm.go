package model

import (
	"encoding/json"
	"time"
)

// AlarmCondition selects what an alarm watches for.
type AlarmCondition string

const (
	ConditionBuySignal    AlarmCondition = "BUY_SIGNAL"
	ConditionF4BuySignal  AlarmCondition = "F4_BUY_SIGNAL"
	ConditionSellSignal   AlarmCondition = "SELL_SIGNAL"
	ConditionF4SellSignal AlarmCondition = "F4_SELL_SIGNAL"
	ConditionPriceAbove   AlarmCondition = "PRICE_ABOVE"
	ConditionPriceBelow   AlarmCondition = "PRICE_BELOW"
)

// Valid reports whether c is a known condition.
func (c AlarmCondition) Valid() bool {
	switch c {
	case ConditionBuySignal, ConditionF4BuySignal, ConditionSellSignal,
		ConditionF4SellSignal, ConditionPriceAbove, ConditionPriceBelow:
		return true
	}
	return false
}

// AlarmAction selects what happens when an alarm fires.
type AlarmAction string

const (
	ActionNotify    AlarmAction = "NOTIFY"
	ActionTrade     AlarmAction = "TRADE"
	ActionPanicSell AlarmAction = "PANIC_SELL"
)

// Valid reports whether a is a known action.
func (a AlarmAction) Valid() bool {
	switch a {
	case ActionNotify, ActionTrade, ActionPanicSell:
		return true
	}
	return false
}

// Alarm is a user-defined watch on a symbol. Condition and Action are fixed
// after creation; only IsActive (user) and LastTriggeredAt (engine) change.
type Alarm struct {
	ID              int64          `json:"id"`
	UserID          string         `json:"userId"`
	Symbol          string         `json:"symbol"`
	Condition       AlarmCondition `json:"conditionType"`
	Action          AlarmAction    `json:"actionType"`
	Threshold       float64        `json:"threshold,omitempty"` // PRICE_ABOVE / PRICE_BELOW only
	IsActive        bool           `json:"isActive"`
	CreatedAt       time.Time      `json:"createdAt"`
	LastTriggeredAt *time.Time     `json:"lastTriggeredAt,omitempty"`
}

// AlarmLog is an append-only record of one trigger.
type AlarmLog struct {
	ID           int64           `json:"id"`
	AlarmID      int64           `json:"alarmId"`
	TriggeredAt  time.Time       `json:"triggeredAt"`
	SignalValue  float64         `json:"signalValue"`
	ActionResult json.RawMessage `json:"actionResult"`
	Success      bool            `json:"success"`
}

// AutoTradeSignal is recorded by TRADE alarms. It does not place an order.
type AutoTradeSignal struct {
	ID        int64     `json:"id"`
	AlarmID   int64     `json:"alarmId"`
	UserID    string    `json:"userId"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}
