package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(consoleWriter(os.Stderr)).Level(level).With().Stack().Logger()
	}

	return logger
}

func consoleWriter(out *os.File) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, FormatTimestamp: func(i any) string {
		return time.Now().Format(time.RFC3339)
	}}
}
