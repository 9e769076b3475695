package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

const timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"

// lineWriter receives one encoded log line per call.
type lineWriter interface {
	Write(p []byte) error
}

// route sends records at or above min to out.
type route struct {
	min slog.Level
	out lineWriter
}

type handlerOptions struct {
	level  slog.Leveler
	routes []route
	json   bool
	order  []string
}

// lineHandler renders every record as one flat line. Context metadata fills
// the correlation keys unless the record sets them itself.
type lineHandler struct {
	opts   handlerOptions
	attrs  []slog.Attr
	prefix string
}

func newLineHandler(opts handlerOptions) *lineHandler {
	if opts.level == nil {
		opts.level = slog.LevelInfo
	}
	if opts.order == nil {
		opts.order = defaultKeyOrder
	}
	return &lineHandler{opts: opts}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level()
}

func (h *lineHandler) Handle(ctx context.Context, r slog.Record) error {
	if len(h.opts.routes) == 0 {
		return fmt.Errorf("logger: writer not initialized")
	}

	fields := MetaFrom(ctx).fields()
	var code string
	add := func(a slog.Attr) {
		h.flatten(h.prefix, a, func(key string, v slog.Value) {
			val, ok := fieldValue(v)
			if !ok {
				return
			}
			if err, isErr := v.Any().(error); isErr && v.Kind() == slog.KindAny && code == "" {
				code = errorCode(err)
			}
			fields[fieldKey(key, v)] = val
		})
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})

	ts := r.Time.UTC()
	fields["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = levelName(r.Level.String())
	if h.opts.json {
		fields["ts_unix_nano"] = ts.UnixNano()
	}
	if code != "" {
		if _, set := fields["err_code"]; !set {
			fields["err_code"] = code
		}
	}
	h.finish(fields, r.Message)

	var line []byte
	if h.opts.json {
		var err error
		if line, err = encodeJSON(fields, h.opts.order); err != nil {
			return err
		}
	} else {
		line = encodeKV(fields, h.opts.order)
	}
	line = append(line, '\n')
	var errs []error
	for _, rt := range h.opts.routes {
		if r.Level >= rt.min {
			errs = append(errs, rt.out.Write(line))
		}
	}
	return errors.Join(errs...)
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// finish applies defaults, canonical enumerations and masking.
func (h *lineHandler) finish(fields map[string]any, msg string) {
	if rid, ok := fields["rid"].(string); ok {
		if short := compactRID(rid); short != rid {
			if h.opts.json {
				fields["rid_full"] = rid
			}
			fields["rid"] = short
		}
	}
	if s, _ := fields["event"].(string); s == "" {
		if msg == "" {
			msg = "unknown"
		}
		fields["event"] = msg
	}
	if s, _ := fields["component"].(string); s == "" {
		fields["component"] = "app"
	}
	if s, ok := fields["status"].(string); ok {
		fields["status"] = statusName(s)
	}
	for key := range maskedKeys {
		if s, ok := fields[key].(string); ok {
			fields[key] = Mask(s)
		}
	}
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "" {
			delete(fields, k)
		}
	}
}

func (h *lineHandler) flatten(prefix string, a slog.Attr, fn func(string, slog.Value)) {
	v := a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			h.flatten(key, child, fn)
		}
		return
	}
	if key != "" {
		fn(key, v)
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// fieldKey renames duration attributes so the unit is part of the key.
func fieldKey(key string, v slog.Value) string {
	if _, isDur := durationOf(v); !isDur {
		return key
	}
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func durationOf(v slog.Value) (time.Duration, bool) {
	if v.Kind() == slog.KindDuration {
		return v.Duration(), true
	}
	if v.Kind() == slog.KindAny {
		d, ok := v.Any().(time.Duration)
		return d, ok
	}
	return 0, false
}

func fieldValue(v slog.Value) (any, bool) {
	if d, ok := durationOf(v); ok {
		return RoundMS(d).Milliseconds(), true
	}
	switch v.Kind() {
	case slog.KindString:
		return strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return int64(u), true
		}
		return v.Uint64(), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return nil, false
	case error:
		return x.Error(), true
	case fmt.Stringer:
		return x.String(), true
	case string:
		return strings.TrimSpace(x), true
	default:
		return fmt.Sprint(x), true
	}
}

// errorCode returns the code of the first error in the chain that carries one.
func errorCode(err error) string {
	var c interface{ Code() string }
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}
