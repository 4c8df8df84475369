package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger пишет структурированные записи в файл с ротацией и, по желанию, в stderr.
type Logger struct {
	slog *slog.Logger
	file io.Closer
}

type Options struct {
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	Console    bool
}

func NewLogger(opts Options) *Logger {
	var writers []io.Writer
	var closer io.Closer

	if opts.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		writers = append(writers, rotator)
		closer = rotator
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})

	return &Logger{slog: slog.New(handler), file: closer}
}

// NewDiscard возвращает логгер, который ничего не пишет. Нужен в тестах.
func NewDiscard() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel: debug, info, warn, error. Неизвестное значение даёт info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) Debug(msg string, fields ...any) {
	l.slog.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...any) {
	l.slog.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...any) {
	l.slog.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...any) {
	l.slog.Error(msg, fields...)
}

// With возвращает логгер с постоянными полями (site, session).
func (l *Logger) With(fields ...any) *Logger {
	return &Logger{slog: l.slog.With(fields...), file: l.file}
}

// Slog отдаёт нижележащий *slog.Logger для библиотек, которые его принимают.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
