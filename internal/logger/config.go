package logger

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var ErrLogConfigNotFound = errors.New("log configuration file not found")

// Config describes logger output loaded from a YAML file.
//
//	level: debug
//	format: console
//	output: /var/log/metsync.log
//	fields:
//	  env: production
type Config struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"` // "json" (default) or "console"
	Output string            `yaml:"output"` // "stderr" (default), "stdout" or a file path
	Fields map[string]string `yaml:"fields"`
}

// LoadConfig reads a logger configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLogConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read log config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse log config %s: %w", path, err)
	}

	return &cfg, nil
}

// Build creates a logger from the configuration. The returned closer releases
// the output file, if one was opened.
func (c *Config) Build() (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if c.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(c.Level))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		level = parsed
	}

	var (
		out    *os.File
		closer io.Closer = nopCloser{}
	)
	switch c.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log output: %w", err)
		}
		out, closer = f, f
	}

	var w io.Writer = out
	switch c.Format {
	case "", "json":
	case "console":
		w = consoleWriter(out)
	default:
		_ = closer.Close()
		return zerolog.Nop(), nil, fmt.Errorf("invalid log format %q", c.Format)
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	for k, v := range c.Fields {
		ctx = ctx.Str(k, v)
	}

	return ctx.Logger(), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
