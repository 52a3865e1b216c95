// Package logger implements a logging adapter using log/slog.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/crate/internal/core/ports"
)

var _ ports.Logger = (*Logger)(nil)

// messager is implemented by zerr errors: it reports the error's own message without the chain.
type messager interface {
	Message() string
}

// metadater is implemented by zerr errors carrying zerr.With metadata.
type metadater interface {
	Metadata() map[string]any
}

// Logger implements ports.Logger using log/slog.
type Logger struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	jsonMode bool
	output   io.Writer
}

// New creates a new Logger writing human-readable text to stderr.
func New() *Logger {
	return &Logger{
		logger: slog.New(newHandler(os.Stderr, false)),
		output: os.Stderr,
	}
}

func newHandler(w io.Writer, jsonMode bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if jsonMode {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetOutput updates the logger's output destination, preserving the JSON mode.
// If w is nil, os.Stderr is used.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w == nil {
		w = os.Stderr
	}
	l.output = w
	l.logger = slog.New(newHandler(w, l.jsonMode))
}

// SetJSON switches between JSON and text logging.
func (l *Logger) SetJSON(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.jsonMode = enable
	w := l.output
	if w == nil {
		w = os.Stderr
	}
	l.logger = slog.New(newHandler(w, enable))
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Warn(msg)
}

// Error logs an error, rendering its cause chain.
func (l *Logger) Error(err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err == nil {
		return
	}

	if l.jsonMode {
		l.logger.Error("operation failed", "error", err)
		return
	}

	l.logger.Error(formatErrorEntries(collectErrorEntries(err)))
}

// ErrorEntry is one level of an error chain.
type ErrorEntry struct {
	Message  string
	Metadata map[string]any
}

// collectErrorEntries walks the chain. zerr errors contribute their own message and metadata;
// joined errors contribute every branch; any other error contributes its full text and ends the walk.
// A zerr error with an empty message (zerr.With on a standard error) lends its metadata to the
// entry below it.
func collectErrorEntries(err error) []ErrorEntry {
	var entries []ErrorEntry
	var pending map[string]any
	current := err

	for current != nil {
		if joined, ok := current.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				entries = append(entries, collectErrorEntries(e)...)
			}
			break
		}

		m, ok := current.(messager)
		if !ok {
			entries = append(entries, ErrorEntry{Message: current.Error(), Metadata: pending})
			break
		}

		metadata := map[string]any{}
		for k, v := range pending {
			metadata[k] = v
		}
		pending = nil
		if md, ok := current.(metadater); ok {
			for k, v := range md.Metadata() {
				metadata[k] = v
			}
		}

		if m.Message() == "" {
			pending = metadata
		} else {
			entries = append(entries, ErrorEntry{Message: m.Message(), Metadata: metadata})
		}
		current = errors.Unwrap(current)
	}

	return entries
}

// formatErrorEntries renders the entries as "Error: ... Caused by: ..." with sorted metadata.
func formatErrorEntries(entries []ErrorEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var lines []string
	for i, e := range entries {
		msgLines := strings.Split(e.Message, "\n")
		head, indent := "Error: ", "       "
		if i > 0 {
			if i == 1 {
				lines = append(lines, "", "  Caused by:")
			}
			head, indent = "    → ", "      "
		}

		lines = append(lines, head+msgLines[0])
		for _, line := range msgLines[1:] {
			lines = append(lines, indent+line)
		}

		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s%s: %v", indent, k, e.Metadata[k]))
		}
	}

	return strings.Join(lines, "\n")
}
