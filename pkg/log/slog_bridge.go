package log

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
)

const redactedValue = "[REDACTED]"

// bridgeHandler adapts slog records onto the logger's formatter and outputs.
// Groups are flattened into dotted keys.
type bridgeHandler struct {
	logger  *BaseLogger
	prefix  string
	base    Fields
	redact  map[string]bool
	sampler *sampler
}

func newBridgeHandler(logger *BaseLogger) *bridgeHandler {
	return &bridgeHandler{logger: logger}
}

func (h *bridgeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return fromSlogLevel(level) >= h.logger.GetLevel()
}

func (h *bridgeHandler) Handle(_ context.Context, r slog.Record) error {
	if h.sampler != nil && !h.sampler.allow(r.Level, r.Message) {
		return nil
	}

	entry := &Entry{
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Fields:    make(Fields, len(h.base)+r.NumAttrs()),
		Timestamp: r.Time,
		Caller:    callerOf(r.PC),
	}
	for k, v := range h.base {
		entry.Fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		h.put(entry.Fields, h.prefix, a)
		return true
	})
	if err, ok := entry.Fields["error"].(error); ok {
		entry.Error = err
		entry.Fields["error"] = err.Error()
	}

	line, err := h.logger.formatter.Format(entry)
	if err != nil {
		return err
	}
	for _, out := range h.logger.outputs {
		_ = out.Write(entry, line)
	}
	return nil
}

// put stores a under prefix, expanding nested groups.
func (h *bridgeHandler) put(dst Fields, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			h.put(dst, p, ga)
		}
		return
	}
	key := prefix + a.Key
	if h.redact[a.Key] || h.redact[key] {
		dst[key] = redactedValue
		return
	}
	dst[key] = v.Any()
}

func (h *bridgeHandler) clone() *bridgeHandler {
	nh := *h
	nh.base = make(Fields, len(h.base))
	for k, v := range h.base {
		nh.base[k] = v
	}
	return &nh
}

func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := h.clone()
	for _, a := range attrs {
		nh.put(nh.base, nh.prefix, a)
	}
	return nh
}

func (h *bridgeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.prefix = h.prefix + name + "."
	return nh
}

func (h *bridgeHandler) withRedactions(keys []string) *bridgeHandler {
	if len(keys) == 0 {
		return h
	}
	nh := h.clone()
	nh.redact = make(map[string]bool, len(keys))
	for _, k := range keys {
		nh.redact[k] = true
	}
	return nh
}

func (h *bridgeHandler) withSampler(initial, thereafter int) *bridgeHandler {
	if thereafter <= 0 {
		return h
	}
	nh := h.clone()
	nh.sampler = newSampler(initial, thereafter)
	return nh
}

func callerOf(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return frame.File + ":" + strconv.Itoa(frame.Line)
}

type sampleKey struct {
	level slog.Level
	msg   string
}

// sampler passes the first initial entries of each (level, message) pair and
// every thereafter-th one after that.
type sampler struct {
	initial, thereafter uint64

	mu   sync.Mutex
	seen map[sampleKey]uint64
}

func newSampler(initial, thereafter int) *sampler {
	s := &sampler{thereafter: 1, seen: map[sampleKey]uint64{}}
	if initial > 0 {
		s.initial = uint64(initial)
	}
	if thereafter > 1 {
		s.thereafter = uint64(thereafter)
	}
	return s
}

func (s *sampler) allow(level slog.Level, msg string) bool {
	k := sampleKey{level, msg}
	s.mu.Lock()
	n := s.seen[k]
	s.seen[k] = n + 1
	s.mu.Unlock()
	return n < s.initial || (n-s.initial)%s.thereafter == 0
}

var slogLevels = map[Level]slog.Level{
	DebugLevel: slog.LevelDebug,
	InfoLevel:  slog.LevelInfo,
	WarnLevel:  slog.LevelWarn,
	ErrorLevel: slog.LevelError,
	FatalLevel: slog.LevelError,
}

func toSlogLevel(level Level) slog.Level {
	if sl, ok := slogLevels[level]; ok {
		return sl
	}
	return slog.LevelInfo
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level < slog.LevelInfo:
		return DebugLevel
	case level < slog.LevelWarn:
		return InfoLevel
	case level < slog.LevelError:
		return WarnLevel
	}
	return ErrorLevel
}

func attrsFromMap(m Fields) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(m))
	for k, v := range m {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func attrsFromFieldSlice(fields []Field) []slog.Attr {
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	return attrs
}

// argsToAttrs pairs up k1, v1, k2, v2 arguments. Non-string keys and a
// trailing odd value are kept under positional "argN" keys.
func argsToAttrs(args []interface{}) []slog.Attr {
	var attrs []slog.Attr
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			attrs = append(attrs, slog.Any("arg"+strconv.Itoa(i), args[i]))
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = "arg" + strconv.Itoa(i)
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}
