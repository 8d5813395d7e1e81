package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotActive is returned by guarded write-backs when the entity left its
// ACTIVE state (paused, cancelled or deleted) after the cycle loaded it.
var ErrNotActive = errors.New("no longer active")

// InsufficientDataError is returned when an indicator receives fewer
// points than it needs. Callers skip the symbol, not the batch.
type InsufficientDataError struct {
	Indicator string
	Need      int
	Got       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d points, got %d", e.Indicator, e.Need, e.Got)
}

// MarketDataError wraps a failed candle or price fetch.
type MarketDataError struct {
	Symbol string
	Err    error
}

func (e *MarketDataError) Error() string {
	return fmt.Sprintf("market data unavailable for %s: %v", e.Symbol, e.Err)
}

func (e *MarketDataError) Unwrap() error { return e.Err }

// ExecutionError wraps a failed order placement. Entity state is left
// untouched so the next cycle retries.
type ExecutionError struct {
	Symbol string
	Side   Side
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %s %s: %v", e.Side, e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed write-back. When it follows a successful
// order it is the source of duplicate actions on retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorKind classifies err for logging and metrics labels.
func ErrorKind(err error) string {
	var (
		ide *InsufficientDataError
		mde *MarketDataError
		exe *ExecutionError
		pe  *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ide):
		return "insufficient_data"
	case errors.As(err, &mde):
		return "market_data"
	case errors.As(err, &exe):
		return "execution"
	case errors.As(err, &pe):
		return "persistence"
	default:
		return "other"
	}
}
