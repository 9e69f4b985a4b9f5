package itemtime

import (
	"encoding/json"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestExtractAt(t *testing.T) {
	now := fixedNow.Format(Layout)
	cases := []struct {
		name string
		item any
		want string
	}{
		{
			name: "explicit timestamp wins",
			item: `{"timestamp":"2024-01-15T10:30:00.000Z","startTimeUnixNano":"1705318200000000000"}`,
			want: "2024-01-15T10:30:00.000Z",
		},
		{
			name: "direct nano string",
			item: `{"startTimeUnixNano":"1705318200000000000"}`,
			want: "2024-01-15T11:30:00.000Z",
		},
		{
			name: "nano keeps milliseconds",
			item: `{"startTimeUnixNano":"1705318200123000000"}`,
			want: "2024-01-15T11:30:00.123Z",
		},
		{
			name: "nano as JSON number",
			item: `{"startTimeUnixNano":1705318200123000000}`,
			want: "2024-01-15T11:30:00.123Z",
		},
		{
			name: "short nano string read as millis",
			item: `{"startTimeUnixNano":"1234567890"}`,
			want: "1970-01-15T06:56:07.890Z",
		},
		{
			name: "first span",
			item: `{"spans":[{"startTimeUnixNano":"1705318200000000000"},{"startTimeUnixNano":"1705318300000000000"}]}`,
			want: "2024-01-15T11:30:00.000Z",
		},
		{
			name: "direct field beats spans",
			item: `{"startTimeUnixNano":"1705318200123000000","spans":[{"startTimeUnixNano":"1705318300000000000"}]}`,
			want: "2024-01-15T11:30:00.123Z",
		},
		{
			name: "only first span consulted",
			item: `{"spans":[{"name":"a"},{"startTimeUnixNano":"1705318200000000000"}]}`,
			want: now,
		},
		{name: "empty spans", item: `{"spans":[]}`, want: now},
		{name: "empty object", item: `{}`, want: now},
		{name: "null", item: nil, want: now},
		{name: "not an object", item: `[1,2]`, want: now},
		{name: "non numeric nano falls through", item: `{"startTimeUnixNano":"soon"}`, want: now},
		{name: "numeric timestamp is millis", item: `{"timestamp":1705318200000}`, want: "2024-01-15T11:30:00.000Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractAt(tc.item, fixedNow); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestExtractAcceptsDecodedValues(t *testing.T) {
	raw := json.RawMessage(`{"startTimeUnixNano":"1705318200000000000"}`)
	if got := ExtractAt(raw, fixedNow); got != "2024-01-15T11:30:00.000Z" {
		t.Fatalf("raw message: %s", got)
	}
	m := map[string]any{"timestamp": "2024-01-15T10:30:00.000Z"}
	if got := ExtractAt(m, fixedNow); got != "2024-01-15T10:30:00.000Z" {
		t.Fatalf("map: %s", got)
	}
	type span struct {
		StartTimeUnixNano string `json:"startTimeUnixNano"`
	}
	type trace struct {
		Spans []span `json:"spans"`
	}
	if got := ExtractAt(trace{Spans: []span{{"1705318200000000000"}}}, fixedNow); got != "2024-01-15T11:30:00.000Z" {
		t.Fatalf("struct: %s", got)
	}
}

func TestExtractUsesClock(t *testing.T) {
	Now = func() time.Time { return fixedNow }
	defer func() { Now = time.Now }()
	if got := Extract(`{}`); got != fixedNow.Format(Layout) {
		t.Fatalf("got %s", got)
	}
}
