package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it.
var Logger = newLogger(os.Stdout, true)

// Level is a configured level name
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Field names shared by every subsystem
const (
	FieldComponent  = "component"
	FieldListenerID = "listener_id"
	FieldClientID   = "client_id"
)

// Config selects level, encoding and destination
type Config struct {
	Level      Level
	JSONOutput bool

	// Output defaults to stdout
	Output io.Writer
}

// Init installs a new global logger
func Init(cfg Config) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	Logger = newLogger(out, cfg.JSONOutput)
}

func newLogger(out io.Writer, json bool) zerolog.Logger {
	if !json {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a level name to zerolog, case-insensitively. Names
// outside debug..fatal, including the empty name, give info.
func ParseLevel(l Level) zerolog.Level {
	switch lvl, err := zerolog.ParseLevel(strings.ToLower(string(l))); {
	case err != nil:
		return zerolog.InfoLevel
	case lvl < zerolog.DebugLevel, lvl > zerolog.FatalLevel:
		return zerolog.InfoLevel
	default:
		return lvl
	}
}

func with(key, value string) *zerolog.Logger {
	l := Logger.With().Str(key, value).Logger()
	return &l
}

// WithComponent returns a logger tagged with the subsystem name
func WithComponent(component string) *zerolog.Logger { return with(FieldComponent, component) }

// WithListenerID returns a logger tagged with a document listener id
func WithListenerID(id string) *zerolog.Logger { return with(FieldListenerID, id) }

// WithClientID returns a logger tagged with an MQTT client id
func WithClientID(id string) *zerolog.Logger { return with(FieldClientID, id) }
