package ml

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/models"
)

var (
	fenceStart = regexp.MustCompile("(?is)^\\s*```(?:json)?\\s*")
	fenceEnd   = regexp.MustCompile("(?is)\\s*```\\s*$")
)

// cleanReply strips a BOM and markdown code fences around the JSON body.
func cleanReply(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "\uFEFF")
	s = fenceStart.ReplaceAllString(s, "")
	s = fenceEnd.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ParseResult validates a provider reply against schema, field by field, and
// decodes it. A missing or wrong-typed field is never defaulted.
func ParseResult(raw string, schema models.ResponseSchema) (*models.AnalysisResult, error) {
	text := cleanReply(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", models.ErrMalformedResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("%w: reply is not a json object: %v", models.ErrMalformedResponse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: reply is null", models.ErrMalformedResponse)
	}

	for _, f := range schema.Fields {
		value, ok := fields[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing required field '%s'", models.ErrMalformedResponse, f.Name)
		}
		if err := checkType(value, f.Type, f.ItemType); err != nil {
			return nil, fmt.Errorf("%w: field '%s': %v", models.ErrMalformedResponse, f.Name, err)
		}
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	if result.HealthyAlternatives == nil {
		result.HealthyAlternatives = []string{}
	}
	return &result, nil
}

func checkType(raw json.RawMessage, typ, itemType string) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return checkValue(v, typ, itemType)
}

func checkValue(v any, typ, itemType string) error {
	ok := false
	switch typ {
	case models.FieldString:
		_, ok = v.(string)
	case models.FieldBoolean:
		_, ok = v.(bool)
	case models.FieldNumber:
		_, ok = v.(float64)
	case models.FieldArray:
		items, isArray := v.([]any)
		if !isArray {
			break
		}
		for i, item := range items {
			if err := checkValue(item, itemType, ""); err != nil {
				return fmt.Errorf("item %d: %v", i, err)
			}
		}
		ok = true
	default:
		return fmt.Errorf("unknown schema type %s", typ)
	}
	if !ok {
		return fmt.Errorf("expected %s, got %s", typ, jsonTypeName(v))
	}
	return nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return models.FieldString
	case bool:
		return models.FieldBoolean
	case float64:
		return models.FieldNumber
	case []any:
		return models.FieldArray
	default:
		return "object"
	}
}

// warnRating logs ratings outside the nominal scale. They are passed through unchanged.
func warnRating(logger *zap.Logger, r *models.AnalysisResult) {
	if r.Rating < 0 || r.Rating > 10 {
		logger.Warn("rating outside 0-10 scale", zap.Float64("rating", r.Rating), zap.String("food", r.FoodName))
	}
}
