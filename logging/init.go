package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// InitDefault installs a console logger at info level. It is used before
// flags have been parsed.
func InitDefault() {
	_ = Init("info", FormatConsole, false)
}

// Init configures the global zerolog logger writing to stderr.
func Init(level, format string, noColor bool) error {
	return InitWriter(os.Stderr, level, format, noColor)
}

// InitWriter configures the global zerolog logger writing to w.
func InitWriter(w io.Writer, level, format string, noColor bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var out io.Writer
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.RFC3339}
	case FormatJSON:
		out = w
	default:
		return fmt.Errorf("logging: unknown log format %q", format)
	}

	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// ParseLevel parses a level name. An empty name means info.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logging: invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
