package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures process logging.
type Options struct {
	Level  string
	Pretty bool
	// File, when set, receives a copy of every entry and is rotated by size.
	File string
}

// Setup configures the global zerolog logger, which the services log through,
// and returns a Logger over the same output. The returned closer flushes the
// log file, if any.
func Setup(opts Options) (Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := NewRotatingFile(opts.File)
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	zlog.Logger = logger
	zerolog.DefaultContextLogger = &logger

	return NewZerologAdapter(logger), closer, err
}

// NewRotatingFile opens a size rotated log file.
func NewRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
