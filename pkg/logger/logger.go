// Package logger holds the process-wide slog loggers: the application logger
// and a separate audit logger backed by a rotating file.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls audit log output behaviour.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type state struct {
	base    *slog.Logger
	audit   *slog.Logger
	closers []io.Closer
}

var (
	mu      sync.RWMutex
	current *state
	level   = new(slog.LevelVar)
)

// Init builds the loggers from cfg and installs them. Calling Init again
// replaces the previous loggers and closes the files they held.
func Init(cfg Config) error {
	level.Set(parseLevel(cfg.Level))

	next := &state{}
	handler, err := next.handler(cfg.Format, cfg.OutputPaths)
	if err != nil {
		next.close()
		return err
	}
	next.base = slog.New(handler)
	next.audit = next.base
	if cfg.Audit.Enabled {
		audit, closer, err := buildAuditLogger(cfg.Audit)
		if err != nil {
			next.close()
			return err
		}
		next.audit = audit
		next.closers = append(next.closers, closer)
	}

	mu.Lock()
	prev := current
	current = next
	mu.Unlock()
	if prev != nil {
		return prev.close()
	}
	return nil
}

func (s *state) handler(format string, outputs []string) (slog.Handler, error) {
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		w, closer, err := openWriter(out)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			s.closers = append(s.closers, closer)
		}
		writers = append(writers, w)
	}
	return buildHandler(format, io.MultiWriter(writers...), &slog.HandlerOptions{Level: level, AddSource: true}), nil
}

func (s *state) close() error {
	var err error
	for _, c := range s.closers {
		err = errors.Join(err, c.Close())
	}
	s.closers = nil
	return err
}

func buildHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func buildAuditLogger(cfg AuditConfig) (*slog.Logger, io.Closer, error) {
	if cfg.Path == "" {
		return nil, nil, errors.New("audit log path cannot be empty when enabled")
	}
	writer, err := newRotatingWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays, cfg.Compress)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})), writer, nil
}

func openWriter(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, file, nil
}

func parseLevel(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func loaded() *state {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// L returns the application logger, falling back to slog.Default before Init.
func L() *slog.Logger {
	if s := loaded(); s != nil {
		return s.base
	}
	return slog.Default()
}

// Audit returns the audit logger. Without a dedicated audit file it is the
// application logger.
func Audit() *slog.Logger {
	if s := loaded(); s != nil {
		return s.audit
	}
	return L()
}

// Sync closes the files held by the installed loggers.
func Sync() error {
	if s := loaded(); s != nil {
		mu.Lock()
		defer mu.Unlock()
		return s.close()
	}
	return nil
}

// Named returns a child logger tagged with the component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}
