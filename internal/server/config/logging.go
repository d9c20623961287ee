package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/duratask-io/duratask/internal/server/types"
)

type LoggerConfig struct {
	Level          string      `env:"LEVEL"          envDefault:"info"`   // debug|info|warn|error
	Output         string      `env:"OUTPUT"         envDefault:"stdout"` // stdout|stderr|file|comma-separated
	FilePath       string      `env:"FILE_PATH"`                          // required if Output includes file
	FileMode       os.FileMode `env:"FILE_MODE"      envDefault:"0644"`
	ExtraFieldsRaw string      `env:"FIELDS"`                           // key1=val1,key2=val2
	OTELExporter   string      `env:"OTEL_EXPORTER"  envDefault:"http"` // http|grpc
	OTELEndpoint   string      `env:"OTEL_ENDPOINT"`

	file    io.Writer
	fileMut sync.Mutex
}

// Writer returns the primary configured writer.
func (c *Config) Writer() io.Writer {
	writers := c.Writers()
	if len(writers) == 0 {
		return os.Stdout
	}
	return writers[0]
}

// Writers resolves LOG_OUTPUT into writers. Examples:
//
//	stdout
//	stderr
//	file (uses LOG_FILE_PATH)
//	file:/var/log/duratask.log
//	stdout,file:/tmp/duratask.log
//
// Unknown tokens are ignored with a warning.
func (c *Config) Writers() []io.Writer {
	outputs := strings.TrimSpace(c.Logger.Output)
	if outputs == "" {
		return []io.Writer{os.Stdout}
	}
	parts := strings.Split(outputs, ",")
	writers := make([]io.Writer, 0, len(parts))
	seen := make(map[string]struct{})

	addWriter := func(key string, w io.Writer) {
		if w == nil {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		writers = append(writers, w)
	}

	for _, raw := range parts {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lower := strings.ToLower(raw)
		if strings.HasPrefix(lower, "file:") {
			path := strings.TrimPrefix(raw, "file:")
			addWriter("file:"+path, c.openFile(path))
			continue
		}
		switch lower {
		case "stdout":
			addWriter("stdout", os.Stdout)
		case "stderr":
			addWriter("stderr", os.Stderr)
		case "file":
			if c.Logger.FilePath == "" {
				slog.Warn("LOG_OUTPUT includes 'file' but LOG_FILE_PATH not set; skipping")
				continue
			}
			addWriter("file:"+c.Logger.FilePath, c.openFile(c.Logger.FilePath))
		default:
			slog.Warn("unknown log output entry", "entry", raw)
		}
	}

	if len(writers) == 0 {
		return []io.Writer{os.Stdout}
	}
	return writers
}

// openFile opens or reuses a file writer.
func (c *Config) openFile(path string) io.Writer {
	if path == "" {
		return nil
	}
	if c.Logger.file != nil && c.Logger.FilePath == path {
		return c.Logger.file
	}
	c.Logger.fileMut.Lock()
	defer c.Logger.fileMut.Unlock()
	if c.Logger.file != nil && c.Logger.FilePath == path {
		return c.Logger.file
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, c.Logger.FileMode)
	if err != nil {
		slog.Warn("cannot open file for log output", "path", path, "error", err)
		return nil
	}
	c.Logger.FilePath = path
	c.Logger.file = f
	return f
}

// ParseExtraFields parses ExtraFieldsRaw into a map.
func (lc *LoggerConfig) ParseExtraFields() map[string]string {
	res := make(map[string]string)
	if lc == nil || lc.ExtraFieldsRaw == "" {
		return res
	}
	for _, p := range strings.Split(lc.ExtraFieldsRaw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k != "" {
			res[k] = v
		}
	}
	return res
}

func (lc *LoggerConfig) ParseLevel() string {
	if lc == nil {
		return "info"
	}
	lvl := strings.ToLower(strings.TrimSpace(lc.Level))
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		return "info"
	}
}

// logger.Options interface methods.
func (c *Config) LogLevel() slog.Level {
	switch c.Logger.ParseLevel() {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) OTELExporter() string           { return c.Logger.OTELExporter }
func (c *Config) OTELEndpoint() string           { return c.Logger.OTELEndpoint }
func (c *Config) ExtraFields() map[string]string { return c.Logger.ParseExtraFields() }
func (c *Config) RunMode() types.Mode            { return c.Mode }
