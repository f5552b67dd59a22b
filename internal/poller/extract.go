package poller

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultCountField is the payload field read when no extractor is configured.
const DefaultCountField = "sheep_count"

// maxExactFloat is the largest integer a float64 represents exactly (2^53).
const maxExactFloat = 1 << 53

// ErrMalformedPayload reports a payload that decoded as JSON but does not
// carry a non-negative integer count.
var ErrMalformedPayload = errors.New("malformed payload")

// CountExtractor reads the sheep count out of a decoded JSON payload.
//
// Implementations return an error wrapping [ErrMalformedPayload] when the
// payload has no usable count. The poller never writes to the store when an
// extractor fails.
type CountExtractor func(payload any) (int64, error)

// FieldExtractor returns a [CountExtractor] that reads a JSON field using dot
// notation to navigate nested objects.
//
// For example, "data.sheep_count" navigates to {"data": {"sheep_count": 12}}.
// The value must be a JSON integer >= 0; fractions, strings, booleans and
// negative numbers are rejected.
func FieldExtractor(path string) CountExtractor {
	parts := strings.Split(path, ".")

	return func(payload any) (int64, error) {
		value, ok := lookupPath(payload, parts)
		if !ok {
			return 0, fmt.Errorf("%w: field %q not found", ErrMalformedPayload, path)
		}

		n, err := toCount(value)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", ErrMalformedPayload, path, err)
		}
		return n, nil
	}
}

// lookupPath walks a JSON structure using dot notation parts.
func lookupPath(data any, parts []string) (any, bool) {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// toCount converts a decoded JSON value into a non-negative integer.
func toCount(value any) (int64, error) {
	var n int64

	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", v.String())
		}
		n = parsed
	case float64:
		// decoders that do not keep json.Number hand us float64
		if v != math.Trunc(v) || math.Abs(v) > maxExactFloat {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		n = int64(v)
	case nil:
		return 0, errors.New("value is null")
	default:
		return 0, fmt.Errorf("unexpected type %T", value)
	}

	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}
