package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Service     string
	Environment string
	Level       string // debug|info|warn|error
	Format      string // json|console, empty picks console on a terminal
	FilePath    string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

// New builds the root logger. Develop environments log at debug level
// unless a level is configured.
func New(c Config, stdout io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if c.Environment == "develop" {
		level = zerolog.DebugLevel
	}
	if c.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err == nil {
			level = parsed
		}
	}

	var writers []io.Writer
	if useConsole(c.Format, stdout) {
		writers = append(writers, zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, stdout)
	}
	if c.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   true,
		})
	}

	ctx := zerolog.New(io.MultiWriter(writers...)).Level(level).With().Timestamp()
	if c.Service != "" {
		ctx = ctx.Str("svc", c.Service)
	}
	return ctx.Logger()
}

// Setup installs the root logger globally and returns a context carrying it.
func Setup(c Config) context.Context {
	l := New(c, os.Stdout)
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return l.WithContext(context.Background())
}

func useConsole(format string, out io.Writer) bool {
	switch strings.ToLower(format) {
	case "console":
		return true
	case "json":
		return false
	}
	f, ok := out.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
