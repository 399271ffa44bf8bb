// Package analysis turns raw classifier output into the fixed result shape
// returned to the UI, and names the ways an upstream call can fail.
package analysis

import "time"

// RiskLevel is the coarse risk bucket shown to the user.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Result is always fully populated; fallbacks stand in for failed extraction.
type Result struct {
	RiskLevel  RiskLevel `json:"riskLevel"`
	Confidence int       `json:"confidence"`
	Findings   []string  `json:"findings"`
	Timestamp  string    `json:"timestamp"`
}

// TimestampLayout matches the en-US locale string the UI displays.
const TimestampLayout = "1/2/2006, 3:04:05 PM"

// Clock lets tests pin the timestamp.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
