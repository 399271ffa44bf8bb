package analysis

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 3, 7, 14, 5, 9, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(fixedClock{t: testNow}, nil)
}

func TestNormalizeScoredPrediction(t *testing.T) {
	n := newTestNormalizer()

	result, outcome := n.Normalize([]byte(`{"data":[{"label":"Melanoma","confidence":0.873}]}`))

	if outcome != OutcomeExtracted {
		t.Fatalf("expected extracted outcome, got %s", outcome)
	}
	want := Result{
		RiskLevel:  RiskHigh,
		Confidence: 87,
		Findings:   []string{"Primary classification: Melanoma", "Confidence level: 87%"},
		Timestamp:  "3/7/2026, 2:05:09 PM",
	}
	if !reflect.DeepEqual(result, want) {
		t.Fatalf("unexpected result:\n got %+v\nwant %+v", result, want)
	}
}

func TestNormalizeScoredPredictionToleratesLooseJSON(t *testing.T) {
	n := newTestNormalizer()

	cases := []struct {
		name       string
		raw        string
		confidence int
		label      string
	}{
		{
			name:       "duplicate keys keep the last value",
			raw:        `{"data":[{"label":"Melanoma","confidence":0.9,"confidence":0.8}]}`,
			confidence: 80,
			label:      "Melanoma",
		},
		{
			name:       "invalid utf-8 in label",
			raw:        "{\"data\":[{\"label\":\"Melanoma\xff\",\"confidence\":0.9}]}",
			confidence: 90,
			label:      "Melanoma\ufffd",
		},
		{
			name:       "out of range number elsewhere",
			raw:        `{"data":[{"label":"Melanoma","confidence":0.9,"extra":1e999}]}`,
			confidence: 90,
			label:      "Melanoma",
		},
		{
			name:       "out of range confidence",
			raw:        `{"data":[{"label":"Melanoma","confidence":1e999}]}`,
			confidence: 100,
			label:      "Melanoma",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, outcome := n.Normalize([]byte(tc.raw))

			if outcome != OutcomeExtracted {
				t.Fatalf("expected extracted outcome, got %s (%q)", outcome, result.Findings)
			}
			if result.RiskLevel != RiskHigh || result.Confidence != tc.confidence {
				t.Fatalf("unexpected result %+v", result)
			}
			if result.Findings[0] != "Primary classification: "+tc.label {
				t.Fatalf("unexpected label finding %q", result.Findings[0])
			}
		})
	}
}

func TestNormalizeRankedPredictionCapsFindings(t *testing.T) {
	n := newTestNormalizer()
	raw := `{"data":[{"label":"nevus","confidences":[
		{"label":"nevus","confidence":0.61},
		{"label":"melanoma","confidence":0.2},
		{"confidence":0.1},
		{"label":"keratosis","confidence":"0.05"},
		{"label":"dermatofibroma","confidence":0.04}
	]}]}`

	result, outcome := n.Normalize([]byte(raw))

	if outcome != OutcomeExtracted {
		t.Fatalf("expected extracted outcome, got %s", outcome)
	}
	if result.Confidence != 61 {
		t.Fatalf("expected confidence from first entry, got %d", result.Confidence)
	}
	if result.RiskLevel != RiskMedium {
		t.Fatalf("expected medium risk, got %s", result.RiskLevel)
	}
	want := []string{
		"Primary classification: nevus",
		"nevus: 61%",
		"melanoma: 20%",
		"Unknown: 10%",
		"keratosis: 0.05%",
	}
	if !reflect.DeepEqual(result.Findings, want) {
		t.Fatalf("unexpected findings:\n got %q\nwant %q", result.Findings, want)
	}
}

func TestNormalizeRankedWithoutLabel(t *testing.T) {
	n := newTestNormalizer()

	result, _ := n.Normalize([]byte(`{"confidences":[{"label":"benign","confidence":0.9},{"label":"other","confidence":0.1}]}`))

	if result.Confidence != 90 {
		t.Fatalf("expected 90, got %d", result.Confidence)
	}
	if result.RiskLevel != RiskMedium {
		t.Fatalf("expected default medium risk without label, got %s", result.RiskLevel)
	}
	if len(result.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %q", result.Findings)
	}
}

func TestNormalizeRankedNonNumericFirstEntryFallsBack(t *testing.T) {
	n := newTestNormalizer()

	result, outcome := n.Normalize([]byte(`{"confidences":[{"label":"a","confidence":"high"},{"label":"b","confidence":0.3}]}`))

	if outcome != OutcomeLimitedFallback {
		t.Fatalf("expected limited fallback, got %s", outcome)
	}
	if result.Confidence != 60 {
		t.Fatalf("expected fallback confidence 60, got %d", result.Confidence)
	}
}

func TestNormalizeLimitedFallback(t *testing.T) {
	n := newTestNormalizer()
	want := LimitedConfidenceFallback(testNow)

	payloads := []string{
		`{}`,
		`{"data":[]}`,
		`{"data":[{"something":"else"}]}`,
		`{"label":"nevus"}`,
		`{"label":"nevus","confidence":0}`,
		`[]`,
		`"just text"`,
		`42`,
		`{"confidences":[]}`,
	}
	for _, payload := range payloads {
		result, outcome := n.Normalize([]byte(payload))
		if outcome != OutcomeLimitedFallback {
			t.Errorf("%s: expected limited fallback, got %s", payload, outcome)
			continue
		}
		if !reflect.DeepEqual(result, want) {
			t.Errorf("%s: unexpected result %+v", payload, result)
		}
	}
}

func TestNormalizeParseFallback(t *testing.T) {
	n := newTestNormalizer()
	want := ParseErrorFallback(testNow)

	payloads := []string{
		``,
		`not json`,
		`null`,
		`{"label":7,"confidence":0.5}`,
		`{"data":[{"label":{"name":"x"},"confidence":0.5}]}`,
		`{"label":true}`,
		`{"label":"nevus","confidence":0.5} {}`,
		`   `,
	}
	for _, payload := range payloads {
		result, outcome := n.Normalize([]byte(payload))
		if outcome != OutcomeParseFallback {
			t.Errorf("%q: expected parse fallback, got %s", payload, outcome)
			continue
		}
		if !reflect.DeepEqual(result, want) {
			t.Errorf("%q: unexpected result %+v", payload, result)
		}
	}
}

func TestFallbacksAreDistinguishable(t *testing.T) {
	limited := LimitedConfidenceFallback(testNow)
	parse := ParseErrorFallback(testNow)

	if limited.RiskLevel != RiskMedium || parse.RiskLevel != RiskMedium {
		t.Fatal("both fallbacks must be medium risk")
	}
	if limited.Confidence != 60 || parse.Confidence != 50 {
		t.Fatalf("unexpected fallback confidences: %d %d", limited.Confidence, parse.Confidence)
	}
	if len(limited.Findings) != 4 || len(parse.Findings) != 4 {
		t.Fatal("fallbacks must carry four findings")
	}
	if !strings.Contains(parse.Findings[0], "Error processing") || strings.Contains(limited.Findings[0], "Error") {
		t.Fatalf("fallback findings are not distinguishable: %q vs %q", limited.Findings, parse.Findings)
	}
}

func TestFallbackFindingsAreNotShared(t *testing.T) {
	first := LimitedConfidenceFallback(testNow)
	first.Findings[0] = "mutated"

	if LimitedConfidenceFallback(testNow).Findings[0] == "mutated" {
		t.Fatal("fallback findings must be freshly allocated")
	}
}

func TestNormalizeStampsCurrentTime(t *testing.T) {
	clock := &advancingClock{t: testNow}
	n := NewNormalizer(clock, nil)

	first, _ := n.Normalize([]byte(`{}`))
	second, _ := n.Normalize([]byte(`not json`))

	if first.Timestamp == second.Timestamp {
		t.Fatalf("expected fresh timestamps, got %q twice", first.Timestamp)
	}
}

type advancingClock struct{ t time.Time }

func (c *advancingClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestPercent(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{-0.3, 0},
		{0.004, 0},
		{0.005, 1},
		{0.5, 50},
		{0.996, 100},
		{1, 100},
		{42, 42},
		{87.6, 88},
		{250, 100},
	}
	for _, tc := range cases {
		if got := percent(tc.in); got != tc.want {
			t.Errorf("percent(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
