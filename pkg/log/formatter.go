package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const defaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// TextFormatter renders entries as a single human readable line:
//
//	2024-01-15T11:30:00.000Z INFO  message key=value ...
type TextFormatter struct {
	TimeFormat       string
	DisableTimestamp bool
	ShowCaller       bool
}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var b bytes.Buffer
	if !f.DisableTimestamp {
		layout := f.TimeFormat
		if layout == "" {
			layout = defaultTimeFormat
		}
		b.WriteString(entry.Timestamp.UTC().Format(layout))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", entry.Level.String(), entry.Message)
	for _, k := range sortedKeys(entry.Fields) {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		writeTextValue(&b, entry.Fields[k])
	}
	if f.ShowCaller && entry.Caller != "" {
		b.WriteString(" caller=")
		b.WriteString(entry.Caller)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func writeTextValue(b *bytes.Buffer, v interface{}) {
	var s string
	switch tv := v.(type) {
	case string:
		s = tv
	case error:
		s = tv.Error()
	case time.Time:
		s = tv.UTC().Format(defaultTimeFormat)
	default:
		s = fmt.Sprint(tv)
	}
	if s == "" || bytes.ContainsAny([]byte(s), " \t\n\"=") {
		fmt.Fprintf(b, "%q", s)
		return
	}
	b.WriteString(s)
}

// JSONFormatter renders entries as one JSON object per line.
type JSONFormatter struct {
	TimeFormat string
	ShowCaller bool
}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	layout := f.TimeFormat
	if layout == "" {
		layout = defaultTimeFormat
	}
	out := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[k] = v
	}
	out["ts"] = entry.Timestamp.UTC().Format(layout)
	out["level"] = entry.Level.String()
	out["msg"] = entry.Message
	if f.ShowCaller && entry.Caller != "" {
		out["caller"] = entry.Caller
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
