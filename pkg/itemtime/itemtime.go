package itemtime

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Layout is the output format.
const Layout = "2006-01-02T15:04:05.000Z"

// msDigits is the length of a millisecond epoch for current dates.
const msDigits = 13

// Now is the clock used for the fallback rule.
var Now = time.Now

// Extract returns the display timestamp of item. item may be raw JSON
// ([]byte, json.RawMessage, string holding JSON), a decoded map, or any
// value encoding/json can marshal.
func Extract(item any) string {
	return ExtractAt(item, Now())
}

// ExtractAt is Extract with an explicit fallback time.
func ExtractAt(item any, now time.Time) string {
	obj := asObject(item)
	if obj != nil {
		if s, ok := explicitTimestamp(obj["timestamp"]); ok {
			return s
		}
		if ms, ok := nanoToMillis(obj["startTimeUnixNano"]); ok {
			return Format(ms)
		}
		if spans, ok := obj["spans"].([]any); ok && len(spans) > 0 {
			if first, ok := spans[0].(map[string]any); ok {
				if ms, ok := nanoToMillis(first["startTimeUnixNano"]); ok {
					return Format(ms)
				}
			}
		}
	}
	return now.UTC().Format(Layout)
}

// Format renders epoch milliseconds in Layout.
func Format(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(Layout)
}

// explicitTimestamp returns a string timestamp unchanged. A numeric one is
// read as epoch milliseconds and rendered in Layout, so every result is a
// string of the same shape.
func explicitTimestamp(v any) (string, bool) {
	switch tv := v.(type) {
	case string:
		if tv == "" {
			return "", false
		}
		return tv, true
	case json.Number:
		ms, err := tv.Int64()
		if err != nil {
			return "", false
		}
		return Format(ms), true
	case float64:
		return Format(int64(tv)), true
	default:
		return "", false
	}
}

func nanoToMillis(v any) (int64, bool) {
	var s string
	switch tv := v.(type) {
	case string:
		s = strings.TrimSpace(tv)
	case json.Number:
		s = tv.String()
	case float64:
		s = strconv.FormatFloat(tv, 'f', 0, 64)
	default:
		return 0, false
	}
	if s == "" {
		return 0, false
	}
	if len(s) > msDigits {
		s = s[:msDigits]
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

func asObject(item any) map[string]any {
	var raw []byte
	switch tv := item.(type) {
	case nil:
		return nil
	case map[string]any:
		return tv
	case json.RawMessage:
		raw = tv
	case []byte:
		raw = tv
	case string:
		raw = []byte(tv)
	default:
		b, err := json.Marshal(tv)
		if err != nil {
			return nil
		}
		raw = b
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil
	}
	return obj
}
