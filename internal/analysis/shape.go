package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

const maxRankedFindings = 4

// prediction is one recognized shape of the upstream record. Each variant
// knows how to turn itself into an overall confidence and its findings.
type prediction interface {
	extract() (confidence int, findings []string)
}

// scoredPrediction carries a single numeric `confidence`.
type scoredPrediction struct {
	score float64
}

// rankedPrediction carries a `confidences` list of {label, confidence} entries,
// most likely first.
type rankedPrediction struct {
	entries []*structpb.Value
}

// unrecognizedPrediction has no confidence information at all.
type unrecognizedPrediction struct{}

type record struct {
	label string
	shape prediction
}

// decodeRecord parses raw upstream JSON into a record. Errors here mean the
// payload itself is unusable, as opposed to merely carrying no prediction.
// Decoding is as lenient as a browser's JSON.parse: duplicate keys keep the
// last value, invalid UTF-8 is replaced and out-of-range numbers become ±Inf.
func decodeRecord(raw []byte) (*record, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty payload")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode payload: trailing data after JSON value")
	}
	if decoded == nil {
		return nil, errors.New("payload is null")
	}

	fields := unwrap(toValue(decoded)).GetStructValue().GetFields()
	label, err := labelOf(fields["label"])
	if err != nil {
		return nil, err
	}
	return &record{label: label, shape: shapeOf(fields)}, nil
}

// toValue builds the structpb view of a value produced by a UseNumber decoder.
func toValue(v any) *structpb.Value {
	switch v := v.(type) {
	case nil:
		return structpb.NewNullValue()
	case bool:
		return structpb.NewBoolValue(v)
	case string:
		return structpb.NewStringValue(v)
	case json.Number:
		// Overflow saturates to ±Inf rather than failing the payload.
		f, _ := strconv.ParseFloat(v.String(), 64)
		return structpb.NewNumberValue(f)
	case []any:
		values := make([]*structpb.Value, len(v))
		for i, item := range v {
			values[i] = toValue(item)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values})
	case map[string]any:
		fields := make(map[string]*structpb.Value, len(v))
		for key, item := range v {
			fields[key] = toValue(item)
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields})
	default:
		return structpb.NewNullValue()
	}
}

// unwrap takes the first element of a `data` list, or of the payload itself
// when it is a list. Anything else is returned as-is.
func unwrap(payload *structpb.Value) *structpb.Value {
	data := payload.GetStructValue().GetFields()["data"]
	if values := data.GetListValue().GetValues(); len(values) > 0 {
		return values[0]
	}
	if values := payload.GetListValue().GetValues(); len(values) > 0 {
		return values[0]
	}
	return payload
}

// labelOf treats absent and falsy labels as "no label". A label that is
// present but not text cannot be classified.
func labelOf(v *structpb.Value) (string, error) {
	switch kind := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return "", nil
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	case *structpb.Value_BoolValue:
		if !kind.BoolValue {
			return "", nil
		}
	case *structpb.Value_NumberValue:
		if kind.NumberValue == 0 {
			return "", nil
		}
	}
	return "", fmt.Errorf("label has unsupported type %T", v.GetKind())
}

func shapeOf(fields map[string]*structpb.Value) prediction {
	if score, ok := fields["confidence"].GetKind().(*structpb.Value_NumberValue); ok {
		return scoredPrediction{score: score.NumberValue}
	}
	if list, ok := fields["confidences"].GetKind().(*structpb.Value_ListValue); ok {
		return rankedPrediction{entries: list.ListValue.GetValues()}
	}
	return unrecognizedPrediction{}
}

func (p scoredPrediction) extract() (int, []string) {
	confidence := percent(p.score)
	return confidence, []string{fmt.Sprintf("Confidence level: %d%%", confidence)}
}

func (p rankedPrediction) extract() (int, []string) {
	confidence := 0
	var findings []string
	for i, entry := range p.entries {
		entryStruct := entry.GetStructValue()
		if entryStruct == nil {
			continue
		}
		entryFields := entryStruct.GetFields()

		display := "n/a"
		switch kind := entryFields["confidence"].GetKind().(type) {
		case *structpb.Value_NumberValue:
			pct := percent(kind.NumberValue)
			if i == 0 {
				confidence = pct
			}
			display = strconv.Itoa(pct)
		case *structpb.Value_StringValue:
			display = kind.StringValue
		case *structpb.Value_BoolValue:
			display = strconv.FormatBool(kind.BoolValue)
		}

		if i < maxRankedFindings {
			findings = append(findings, fmt.Sprintf("%s: %s%%", entryLabel(entryFields["label"]), display))
		}
	}
	return confidence, findings
}

func (unrecognizedPrediction) extract() (int, []string) {
	return 0, nil
}

func entryLabel(v *structpb.Value) string {
	if label := v.GetStringValue(); label != "" {
		return label
	}
	return "Unknown"
}

// percent converts a score to a whole percentage. Values up to 1 are read as
// fractions, larger values as percentages already. The result is clamped to [0, 100].
func percent(score float64) int {
	if math.IsNaN(score) || score <= 0 {
		return 0
	}
	if score <= 1 {
		score *= 100
	}
	return int(math.Min(math.Round(score), 100))
}
