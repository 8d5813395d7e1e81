package indicator

import (
	"math"
	"time"

	"crypto-signals/internal/model"
)

// MinPredictPoints is the minimum history Predict accepts.
const MinPredictPoints = 10

// Trend directions of a prediction.
const (
	TrendUp   = "UP"
	TrendDown = "DOWN"
	TrendFlat = "FLAT"
)

// Prediction is a one-step-ahead linear forecast.
type Prediction struct {
	CurrentPrice   float64   `json:"currentPrice"`
	PredictedPrice float64   `json:"predictedPrice"`
	Trend          string    `json:"trend"`
	Confidence     float64   `json:"confidence"` // 0-100
	Slope          float64   `json:"slope"`
	Intercept      float64   `json:"intercept"`
	RSquared       float64   `json:"rSquared"`
	ForecastTime   time.Time `json:"forecastTime"`
}

// LinearRegression fits y = slope*x + intercept by ordinary least squares
// with x = 0..n-1. A constant series fits perfectly (R² = 1).
func LinearRegression(y []float64) (slope, intercept, r2 float64) {
	n := float64(len(y))
	if len(y) == 0 {
		return 0, 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den != 0 {
		slope = (n*sumXY - sumX*sumY) / den
	}
	intercept = (sumY - slope*sumX) / n

	mean := sumY / n
	var ssRes, ssTot float64
	for i, v := range y {
		fit := slope*float64(i) + intercept
		ssRes += (v - fit) * (v - fit)
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		return slope, intercept, 1
	}
	return slope, intercept, 1 - ssRes/ssTot
}

// Predict forecasts the next price from prices (oldest first). The
// forecast is stamped one hour after now.
func Predict(prices []float64, now time.Time) (Prediction, error) {
	if len(prices) < MinPredictPoints {
		return Prediction{}, &model.InsufficientDataError{Indicator: "predictor", Need: MinPredictPoints, Got: len(prices)}
	}
	slope, intercept, r2 := LinearRegression(prices)

	trend := TrendFlat
	if slope > 0 {
		trend = TrendUp
	} else if slope < 0 {
		trend = TrendDown
	}

	return Prediction{
		CurrentPrice:   prices[len(prices)-1],
		PredictedPrice: slope*float64(len(prices)) + intercept,
		Trend:          trend,
		Confidence:     math.Min(100, math.Max(0, r2*100)),
		Slope:          slope,
		Intercept:      intercept,
		RSquared:       r2,
		ForecastTime:   now.Add(time.Hour),
	}, nil
}
