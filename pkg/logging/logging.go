package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Init configures the global zerolog state. Level is one of trace, debug,
// info, warn, error; unknown values fall back to info. When pretty is true,
// output goes through a console writer for local development, otherwise
// records are emitted as JSON.
func Init(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	log := zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log
}

// For returns a logger tagged with the originating component.
func For(component string) zerolog.Logger {
	base := zerolog.DefaultContextLogger
	if base == nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		base = &l
	}
	return base.With().Str("component", component).Logger()
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
