package cmds

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger configures the global logger to write to stderr.
func InitLogger(level string, withCaller bool) error {
	return setLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, level, withCaller)
}

// LogToFile redirects the global logger to a rotated file. The TUI owns the
// terminal, so nothing may be written to stderr while it runs.
func LogToFile(path string, level string, withCaller bool) (io.Closer, error) {
	if path == "" {
		return nopCloser{}, setLogger(io.Discard, level, withCaller)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	if err := setLogger(rotator, level, withCaller); err != nil {
		_ = rotator.Close()
		return nil, err
	}
	return rotator, nil
}

func setLogger(w io.Writer, level string, withCaller bool) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", level)
		}
		lvl = l
	}
	zerolog.SetGlobalLevel(lvl)

	ctx := zerolog.New(w).With().Timestamp()
	if withCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
