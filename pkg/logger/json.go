package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// jsonLine is one line of JSON log output. Pipeline identifiers stay flat in
// Fields so log processors can index job_id and key directly.
type jsonLine struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Msg       string         `json:"msg"`
	Source    string         `json:"source,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type jsonHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	addSource bool
	component string
	attrs     []slog.Attr
	prefix    string
}

func newJSONHandler(w io.Writer, addSource bool) *jsonHandler {
	return &jsonHandler{w: w, mu: &sync.Mutex{}, addSource: addSource}
}

func (h *jsonHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	line := jsonLine{
		Time:      at.UTC().Format(time.RFC3339Nano),
		Level:     strings.ToLower(record.Level.String()),
		Component: h.component,
		Msg:       record.Message,
	}
	if h.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.File != "" {
			line.Source = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
	}

	fields := make(map[string]any, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		fields[attr.Key] = attr.Value.Any()
	}
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == ComponentKey && h.prefix == "" {
			line.Component = attr.Value.String()
			return true
		}
		putField(fields, h.prefix+attr.Key, attr.Value)
		return true
	})
	if len(fields) > 0 {
		line.Fields = fields
	}

	payload, err := json.Marshal(line)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(payload, '\n'))
	return err
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, attr := range attrs {
		if attr.Key == ComponentKey && h.prefix == "" {
			next.component = attr.Value.String()
			continue
		}
		fields := map[string]any{}
		putField(fields, h.prefix+attr.Key, attr.Value)
		for key, value := range fields {
			next.attrs = append(next.attrs, slog.Any(key, value))
		}
	}
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// putField flattens groups into dotted keys and renders durations and times
// as strings.
func putField(fields map[string]any, key string, value slog.Value) {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindGroup:
		for _, attr := range value.Group() {
			putField(fields, key+"."+attr.Key, attr.Value)
		}
	case slog.KindDuration:
		fields[key] = value.Duration().String()
	case slog.KindTime:
		fields[key] = value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			fields[key] = err.Error()
			return
		}
		fields[key] = value.Any()
	default:
		fields[key] = value.Any()
	}
}
