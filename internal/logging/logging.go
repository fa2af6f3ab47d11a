// Package logging provides structured diagnostic logging, kept separate
// from the product output (printed command lines, captured tool output)
// that the pipeline writes directly to stdout/stderr.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Level is the severity of a log message.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levelPriority = map[Level]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
}

// Format is the wire shape of emitted log lines.
type Format string

const (
	JSONFormat  Format = "json"
	HumanFormat Format = "human"
)

// Config configures a Logger.
type Config struct {
	Format Format
	Level  Level
	Output io.Writer // defaults to stderr when nil
}

// Logger is a minimal structured logger with leveled filtering.
type Logger struct {
	config Config
	writer io.Writer
}

// NewLogger builds a Logger from Config, defaulting Output to stderr so
// that diagnostic logs never interleave with a batch's captured product
// output on stdout.
func NewLogger(config Config) *Logger {
	writer := config.Output
	if writer == nil {
		writer = os.Stderr
	}
	if config.Level == "" {
		config.Level = InfoLevel
	}
	return &Logger{config: config, writer: writer}
}

type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) shouldLog(level Level) bool {
	return levelPriority[level] >= levelPriority[l.config.Level]
}

func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}
	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   message,
		Fields:    fields,
	}
	if l.config.Format == JSONFormat {
		l.logJSON(entry)
		return
	}
	l.logHuman(entry)
}

func (l *Logger) logJSON(entry logEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logging: failed to marshal entry: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(l.writer, string(data))
}

func (l *Logger) logHuman(entry logEntry) {
	_, _ = fmt.Fprintf(l.writer, "%s [%s] %s", entry.Timestamp, entry.Level, entry.Message)
	for k, v := range entry.Fields {
		_, _ = fmt.Fprintf(l.writer, " %s=%v", k, v)
	}
	_, _ = fmt.Fprintln(l.writer)
}

func (l *Logger) Debug(message string, fields map[string]interface{}) { l.log(DebugLevel, message, fields) }
func (l *Logger) Info(message string, fields map[string]interface{})  { l.log(InfoLevel, message, fields) }
func (l *Logger) Warn(message string, fields map[string]interface{})  { l.log(WarnLevel, message, fields) }
func (l *Logger) Error(message string, fields map[string]interface{}) { l.log(ErrorLevel, message, fields) }
