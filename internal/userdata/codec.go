// Package userdata converts between application values and the string records the
// backend stores as user data.
//
// Values are stored as JSON text. On read, text that is valid JSON is decoded and
// anything else is returned as a plain string, so records written by other clients
// never fail a read. A plain string that happens to be valid JSON (for example "42")
// reads back decoded.
//
// Numbers written without a fraction or exponent decode as int, all others as
// float64, so integers round-trip unchanged. A float64 with an integral value (7.0 is
// written as 7) reads back as int.
package userdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/playfab-session/internal/domain"
	"github.com/tidwall/gjson"
)

// Stringify encodes every value of data as JSON text
func Stringify(data map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(data))
	for k, v := range data {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding user data %q: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

// Parse decodes the value of every record. A nil map yields an empty map.
func Parse(records map[string]domain.UserDataRecord) map[string]any {
	out := make(map[string]any, len(records))
	for k, record := range records {
		out[k] = decode(record.Value)
	}
	return out
}

// IsJSON reports whether value is a complete JSON document
func IsJSON(value string) bool {
	return gjson.Valid(value)
}

func decode(value string) any {
	if !IsJSON(value) {
		return value
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(value)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return value
	}
	return normalize(v)
}

// normalize replaces every json.Number inside v with an int or a float64
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		return number(t)
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	default:
		return v
	}
}

func number(n json.Number) any {
	text := n.String()
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.Atoi(text); err == nil {
			return i
		}
	}
	f, err := n.Float64()
	if err != nil {
		return text
	}
	return f
}
