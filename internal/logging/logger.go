// Package logging configures the process-wide zerolog logger and hands out
// component loggers for sessions, the client and the dev service.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Logger is the process-wide logger. Component loggers derive from it.
var Logger zerolog.Logger

// Config selects level, encoding and destination.
type Config struct {
	// Level is one of trace, debug, info, warn, error or fatal. Unknown
	// values mean info.
	Level string

	// Format is "console" for human-readable lines or "json".
	Format string

	// Output receives log lines. Nil means stderr.
	Output io.Writer

	// EnableCaller adds file:line to every line.
	EnableCaller bool
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: os.Stderr,
	}
}

// Init replaces Logger. Loggers obtained earlier keep their old settings.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(out),
		}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	Logger = ctx.Logger()
}

// Disable discards all log output. The thread view uses it when no log file
// is configured, since stray lines would corrupt the alternate screen.
func Disable() {
	Logger = zerolog.Nop()
}

// isTerminal is false for log files and pipes, which get no color codes.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a logger tagged with component.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithThread returns a component logger tagged with a thread ID.
func WithThread(component, threadID string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("thread_id", threadID).Logger()
}

func init() {
	Init(DefaultConfig())
}
