package log

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// redactedValue replaces the value of every redacted key.
const redactedValue = "[REDACTED]"

// maxSampleKeys bounds the sampler's per-message counters. Reaching it
// starts a fresh window.
const maxSampleKeys = 1024

// pkgDir is this package's source directory; frames from it are skipped when
// resolving the caller.
var pkgDir = func() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}()

// bridgeHandler is the slog.Handler behind BaseLogger. It flattens groups into
// dotted keys, redacts configured keys at any depth (base fields included),
// renders byte payloads as quoted text and samples repetitive low-severity
// messages before handing the entry to the formatter and outputs.
type bridgeHandler struct {
	logger  *BaseLogger
	attrs   Fields
	prefix  string
	redact  map[string]struct{}
	sampler *sampler
}

func newBridgeHandler(l *BaseLogger) *bridgeHandler {
	h := &bridgeHandler{logger: l, attrs: Fields{}}
	if len(l.redact) > 0 {
		h.redact = make(map[string]struct{}, len(l.redact))
		for _, k := range l.redact {
			h.redact[k] = struct{}{}
		}
	}
	if l.sampleThereafter > 0 {
		h.sampler = newSampler(l.sampleInitial, l.sampleThereafter)
	}
	for k, v := range l.fields {
		h.put(h.attrs, "", slog.Any(k, v))
	}
	return h
}

func (h *bridgeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.level <= fromSlogLevel(level)
}

func (h *bridgeHandler) Handle(_ context.Context, r slog.Record) error {
	level := fromSlogLevel(r.Level)
	if h.sampler != nil && level < WarnLevel && !h.sampler.allow(level, r.Message) {
		return nil
	}
	fields := make(Fields, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		h.put(fields, h.prefix, a)
		return true
	})
	entry := &Entry{
		Level:     level,
		Message:   r.Message,
		Fields:    fields,
		Timestamp: r.Time,
		Caller:    callerOutside(),
	}
	formatted, err := h.logger.formatter.Format(entry)
	if err != nil {
		return err
	}
	for _, out := range h.logger.outputs {
		_ = out.Write(entry, formatted)
	}
	return nil
}

func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := *h
	nh.attrs = make(Fields, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		nh.attrs[k] = v
	}
	for _, a := range attrs {
		nh.put(nh.attrs, h.prefix, a)
	}
	return &nh
}

// WithGroup prefixes later keys with name and a dot.
func (h *bridgeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}

// put stores a under prefix, descending into groups. Redaction matches the
// attribute's own key so a redacted key stays hidden inside any group.
func (h *bridgeHandler) put(dst Fields, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			h.put(dst, inner, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := prefix + a.Key
	if _, ok := h.redact[a.Key]; ok {
		dst[key] = redactedValue
		return
	}
	if b, ok := v.Any().([]byte); ok {
		dst[key] = strconv.Quote(string(b))
		return
	}
	dst[key] = v.Any()
}

// callerOutside returns file:line of the first frame outside this package and
// the standard logging packages, so entries point at the code that logged.
func callerOutside() string {
	var pcs [16]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !skipFrame(f) {
			return filepath.Base(filepath.Dir(f.File)) + "/" + filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)
		}
		if !more {
			return ""
		}
	}
}

func skipFrame(f runtime.Frame) bool {
	switch {
	case strings.HasPrefix(f.Function, "log/slog."),
		strings.HasPrefix(f.Function, "log."),
		strings.HasPrefix(f.Function, "runtime."):
		return true
	case filepath.Dir(f.File) == pkgDir:
		return !strings.HasSuffix(f.File, "_test.go")
	}
	return false
}

// sampler passes the first initial entries of each (level, message) and then
// every thereafter-th.
type sampler struct {
	mu         sync.Mutex
	initial    uint64
	thereafter uint64
	counts     map[string]uint64
}

func newSampler(initial, thereafter int) *sampler {
	return &sampler{
		initial:    uint64(max(initial, 0)),
		thereafter: uint64(max(thereafter, 1)),
		counts:     make(map[string]uint64),
	}
}

func (s *sampler) allow(level Level, message string) bool {
	key := level.String() + "|" + message
	s.mu.Lock()
	defer s.mu.Unlock()
	n, seen := s.counts[key]
	if !seen && len(s.counts) >= maxSampleKeys {
		clear(s.counts)
	}
	s.counts[key] = n + 1
	if n < s.initial {
		return true
	}
	return (n-s.initial)%s.thereafter == 0
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel, FatalLevel:
		return slog.LevelError
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

func fieldAttrs(fields []Field) []slog.Attr {
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	return attrs
}

// pairAttrs turns k1, v1, k2, v2 into attributes. Non-string keys and a
// trailing value get positional "argN" keys.
func pairAttrs(args []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			attrs = append(attrs, slog.Any(fmt.Sprintf("arg%d", i), args[i]))
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}
