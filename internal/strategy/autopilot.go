package strategy

import (
	"math"
	"time"
)

// RiskLevel grades a phase.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Phase is one stage of an autopilot trading cycle.
type Phase struct {
	Name         string    `json:"name"`
	DurationDays int       `json:"durationDays"`
	Description  string    `json:"description"`
	Strategy     Type      `json:"strategyType"`
	Risk         RiskLevel `json:"riskLevel"`
}

// Phases is the fixed autopilot cycle.
var Phases = []Phase{
	{"Accumulation Phase", 30, "Buying quality assets at low prices. Low risk, long-term focus.", TypeRSI, RiskLow},
	{"Growth Phase", 30, "Capitalizing on market momentum. Medium risk, trend following.", TypeMACrossover, RiskMedium},
	{"Expansion Phase", 30, "Maximizing profits during bull runs. Higher risk, volatile assets.", TypeMACD, RiskHigh},
	{"Harvest Phase", 30, "Closing positions and securing gains. Risk reduction and exit.", TypeRSI, RiskLow},
}

// PhaseStatus locates a point in time within a cycle.
type PhaseStatus struct {
	Phase         Phase   `json:"phase"`
	Index         int     `json:"index"`
	RemainingDays int     `json:"remainingDays"`
	Progress      float64 `json:"progress"` // percent of the whole cycle
}

// CycleLength returns the total duration of Phases.
func CycleLength() time.Duration {
	days := 0
	for _, p := range Phases {
		days += p.DurationDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// PhaseAt returns the phase active at now for a cycle started at start.
// ok is false once the cycle has ended or before it starts.
func PhaseAt(start, now time.Time) (PhaseStatus, bool) {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		return PhaseStatus{}, false
	}
	elapsedDays := elapsed.Hours() / 24
	progress := math.Min(100, elapsed.Hours()/CycleLength().Hours()*100)

	acc := 0.0
	for i, p := range Phases {
		acc += float64(p.DurationDays)
		if elapsedDays <= acc {
			return PhaseStatus{
				Phase:         p,
				Index:         i,
				RemainingDays: int(math.Ceil(acc - elapsedDays)),
				Progress:      progress,
			}, true
		}
	}
	return PhaseStatus{}, false
}
