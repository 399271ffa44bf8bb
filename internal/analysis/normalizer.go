package analysis

import (
	"time"

	"go.uber.org/zap"
)

// Outcome records which branch produced a Result.
type Outcome string

const (
	OutcomeExtracted       Outcome = "extracted"
	OutcomeLimitedFallback Outcome = "limited-fallback"
	OutcomeParseFallback   Outcome = "parse-fallback"
)

// maxLoggedPayload bounds how much of a raw upstream payload ends up in a log line.
const maxLoggedPayload = 4096

// Normalizer converts loosely shaped classifier output into a Result.
type Normalizer struct {
	clock  Clock
	logger *zap.Logger
}

// NewNormalizer builds a Normalizer. A nil clock uses the system clock.
func NewNormalizer(clock Clock, logger *zap.Logger) *Normalizer {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{clock: clock, logger: logger.Named("normalizer")}
}

// Normalize never fails: payloads it cannot read or that carry no usable
// prediction yield one of two fixed fallback results.
func (n *Normalizer) Normalize(raw []byte) (Result, Outcome) {
	rec, err := decodeRecord(raw)
	if err != nil {
		n.logger.Warn("failed to parse classifier response",
			zap.Error(err),
			zap.ByteString("raw", truncate(raw)),
		)
		return ParseErrorFallback(n.clock.Now()), OutcomeParseFallback
	}

	risk := RiskMedium
	var findings []string
	if rec.label != "" {
		findings = append(findings, "Primary classification: "+rec.label)
		risk = ClassifyRisk(rec.label)
	}

	confidence, confidenceFindings := rec.shape.extract()
	findings = append(findings, confidenceFindings...)

	if confidence == 0 || len(findings) == 0 {
		n.logger.Warn("classifier response carried no usable prediction",
			zap.ByteString("raw", truncate(raw)),
		)
		return LimitedConfidenceFallback(n.clock.Now()), OutcomeLimitedFallback
	}

	return Result{
		RiskLevel:  risk,
		Confidence: confidence,
		Findings:   findings,
		Timestamp:  n.clock.Now().Format(TimestampLayout),
	}, OutcomeExtracted
}

// LimitedConfidenceFallback is returned when the response held no prediction.
func LimitedConfidenceFallback(now time.Time) Result {
	return Result{
		RiskLevel:  RiskMedium,
		Confidence: 60,
		Findings: []string{
			"Analysis completed with limited confidence",
			"Image features detected but classification uncertain",
			"Recommend professional dermatologist evaluation",
			"Consider uploading a higher quality dermatoscope image",
		},
		Timestamp: now.Format(TimestampLayout),
	}
}

// ParseErrorFallback is returned when the response could not be read at all.
func ParseErrorFallback(now time.Time) Result {
	return Result{
		RiskLevel:  RiskMedium,
		Confidence: 50,
		Findings: []string{
			"Error processing AI model response",
			"Unable to parse classification results",
			"Immediate professional medical consultation recommended",
			"Please try uploading the image again",
		},
		Timestamp: now.Format(TimestampLayout),
	}
}

func truncate(raw []byte) []byte {
	if len(raw) > maxLoggedPayload {
		return raw[:maxLoggedPayload]
	}
	return raw
}
