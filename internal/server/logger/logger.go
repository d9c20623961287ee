// Copyright 2025 The Duratask Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	color "github.com/fatih/color"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/duratask-io/duratask/internal/server/types"
)

// Logger bundles the slog logger with the OTEL provider owning its
// export pipeline. The provider is nil in debug mode.
type Logger struct {
	Slogger *slog.Logger
	*sdklog.LoggerProvider
}

// Options is the configuration surface the logger needs; satisfied by
// the server config.
type Options interface {
	RunMode() types.Mode
	Writer() io.Writer
	LogLevel() slog.Level
	OTELExporter() string // http|grpc
	OTELEndpoint() string
	ExtraFields() map[string]string
	ServiceName() string
	ServiceVersion() string
}

// NewLogger builds the process logger. Debug mode writes colored
// human-readable lines; release mode exports records over OTLP and
// mirrors warnings as JSON on stdout.
func NewLogger(ctx context.Context, opts Options) (*Logger, error) {
	if opts.Writer() == nil {
		return nil, fmt.Errorf("no log writer")
	}

	handlers := make([]slog.Handler, 0)
	var provider *sdklog.LoggerProvider

	if opts.RunMode().IsRelease() {
		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(opts.ServiceName()),
				semconv.ServiceVersion(opts.ServiceVersion()),
			),
		)
		if err != nil {
			return nil, err
		}

		exporter, err := newExporter(ctx, opts)
		if err != nil {
			return nil, err
		}

		provider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter, nil)),
			sdklog.WithResource(res),
		)

		handlers = append(handlers,
			otelslog.NewHandler(opts.ServiceName(), otelslog.WithLoggerProvider(provider)),
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))
	} else {
		handlers = append(handlers, &DebugHandler{
			out:   opts.Writer(),
			level: opts.LogLevel(),
		})
	}

	logger := slog.New(&MultiHandler{handlers})
	for k, v := range opts.ExtraFields() {
		logger = logger.With(k, v)
	}

	return &Logger{
		Slogger:        logger,
		LoggerProvider: provider,
	}, nil
}

func newExporter(ctx context.Context, opts Options) (sdklog.Exporter, error) {
	switch strings.ToLower(opts.OTELExporter()) {
	case "", "http":
		var o []otlploghttp.Option
		if ep := opts.OTELEndpoint(); ep != "" {
			o = append(o, otlploghttp.WithEndpoint(ep))
		}
		return otlploghttp.New(ctx, o...)
	case "grpc":
		var o []otlploggrpc.Option
		if ep := opts.OTELEndpoint(); ep != "" {
			o = append(o, otlploggrpc.WithEndpoint(ep))
		}
		return otlploggrpc.New(ctx, o...)
	default:
		return nil, fmt.Errorf("unknown OTEL log exporter %q", opts.OTELExporter())
	}
}

type (
	// DebugHandler prints compact colored log lines for local runs.
	DebugHandler struct {
		out   io.Writer
		level slog.Level
		attrs []slog.Attr
		mut   sync.Mutex
	}

	// MultiHandler fans one record out to several handlers.
	MultiHandler struct {
		handlers []slog.Handler
	}
)

var _ slog.Handler = (*DebugHandler)(nil)

// Handle implements slog.Handler
func (h *DebugHandler) Handle(_ context.Context, r slog.Record) error {
	h.mut.Lock()
	defer h.mut.Unlock()

	timeStr := color.New(color.FgHiBlack).Sprint(r.Time.Format("15:04:05"))
	level := levelColor(r.Level)
	attrs := append(h.attrs, []slog.Attr{}...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	logEntry := fmt.Sprintf("%s %s %s%s\n",
		timeStr,
		level,
		r.Message,
		formatAttributes(attrs),
	)

	_, err := h.out.Write([]byte(logEntry))
	return err
}

// WithAttrs implements slog.Handler
func (h *DebugHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DebugHandler{
		out:   h.out,
		level: h.level,
		attrs: append(h.attrs, attrs...),
	}
}

// WithGroup implements slog.Handler
func (h *DebugHandler) WithGroup(name string) slog.Handler {
	return h
}

// Enabled implements slog.Handler
func (h *DebugHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Enabled implements slog.Handler
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler
func (m *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		// Best-effort handling: log handler failures and continue.
		if err := h.Handle(ctx, record); err != nil {
			slog.Error("error from slog handler", "error", err)
		}
	}
	return nil
}

// WithAttrs implements slog.Handler
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

// WithGroup implements slog.Handler
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}

// levelColor returns a colored string representation of the log level.
func levelColor(level slog.Level) string {
	var bg, fg color.Attribute
	switch level {
	case slog.LevelDebug:
		bg, fg = color.BgMagenta, color.FgWhite
	case slog.LevelInfo:
		bg, fg = color.BgBlue, color.FgWhite
	case slog.LevelWarn:
		bg, fg = color.BgYellow, color.FgBlack
	case slog.LevelError:
		bg, fg = color.BgRed, color.FgWhite
	default:
		bg, fg = color.BgWhite, color.FgBlack
	}

	return color.New(bg, fg, color.Bold).Sprint(" " + strings.ToUpper(level.String()) + " ")
}

// formatAttributes formats a slice of attributes as a space-separated string.
func formatAttributes(attrs []slog.Attr) string {
	if len(attrs) == 0 {
		return ""
	}

	var parts []string
	for _, attr := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, formatAttrValue(attr.Value)))
	}

	return " " + strings.Join(parts, " ")
}

// formatAttrValue formats a slog.Value based on its kind.
func formatAttrValue(v slog.Value) string {
	if valuer, ok := v.Any().(slog.LogValuer); ok {
		return formatAttrValue(valuer.LogValue())
	}

	switch v.Kind() {
	case slog.KindString:
		return fmt.Sprintf("%q", v.String())
	case slog.KindInt64:
		return fmt.Sprintf("%d", v.Int64())
	case slog.KindUint64:
		return fmt.Sprintf("%d", v.Uint64())
	case slog.KindFloat64:
		return fmt.Sprintf("%f", v.Float64())
	case slog.KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if m, ok := v.Any().(map[string]string); ok {
			parts := make([]string, 0, len(m))
			for k, v := range m {
				parts = append(parts, fmt.Sprintf("%s:%s", k, v))
			}

			return strings.Join(parts, " ")
		}

		return fmt.Sprintf("%v", v.Any())
	default:
		return fmt.Sprintf("%v", v)
	}
}
