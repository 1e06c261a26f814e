package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

// StdLogger is a lightweight implementation backed by Go's log package.
// Warnings and errors are always written; debug and info only when verbose.
type StdLogger struct {
	verbose bool
	out     *log.Logger
}

// NewStd creates a StdLogger writing to stderr.
func NewStd(verbose bool) *StdLogger {
	return NewWithWriter(os.Stderr, verbose)
}

// NewWithWriter creates a StdLogger writing to w.
func NewWithWriter(w io.Writer, verbose bool) *StdLogger {
	return &StdLogger{verbose: verbose, out: log.New(w, "extscan ", log.LstdFlags)}
}

func (l *StdLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.verbose {
		return
	}
	l.out.Println("[DEBUG]", msg, formatFields(fields))
}

func (l *StdLogger) Info(msg string, fields map[string]interface{}) {
	if !l.verbose {
		return
	}
	l.out.Println("[INFO]", msg, formatFields(fields))
}

func (l *StdLogger) Warn(msg string, fields map[string]interface{}) {
	l.out.Println("[WARN]", msg, formatFields(fields))
}

func (l *StdLogger) Error(msg string, err error, fields map[string]interface{}) {
	l.out.Println("[ERROR]", msg, err, formatFields(fields))
}

// formatFields renders fields as sorted key=value pairs so log lines are stable.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

// Nop discards every log line.
type Nop struct{}

func (Nop) Debug(string, map[string]interface{}) {}
func (Nop) Info(string, map[string]interface{}) {}
func (Nop) Warn(string, map[string]interface{}) {}
func (Nop) Error(string, error, map[string]interface{}) {}
