package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLog = zerolog.New(os.Stdout).With().Timestamp().Logger()

// InitLog configures the process logger. Development mode writes
// human-readable console output, everything else is JSON.
func InitLog(level string, dev bool) {
	var out io.Writer = os.Stdout
	if dev {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	zerolog.SetGlobalLevel(parseLevel(level))
	globalLog = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Str("service", "burnbin").
		Logger().
		Hook(contentHook{})
	log.Logger = globalLog
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func Debug() *zerolog.Event { return globalLog.Debug() }
func Info() *zerolog.Event  { return globalLog.Info() }
func Warn() *zerolog.Event  { return globalLog.Warn() }
func Error() *zerolog.Event { return globalLog.Error() }
func Fatal() *zerolog.Event { return globalLog.Fatal() }
func GetLogger() zerolog.Logger {
	return globalLog
}

// contentHook tags every event so log shippers can assert that paste bodies
// never reach the log stream.
type contentHook struct{}

func (h contentHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level >= zerolog.WarnLevel {
		e.Bool("content_redacted", true)
	}
}
