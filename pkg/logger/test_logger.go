package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger is a Logger implementation for tests that captures every message
// instead of writing it anywhere.
type TestLogger struct {
	mu       sync.Mutex
	messages []LogMessage
	zerolog  *zerolog.Logger
}

// LogMessage represents a captured log message
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a new test logger
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{zerolog: &nop}
}

func (l *TestLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, LogMessage{Level: level, Message: msg, Fields: fields})
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.record("DEBUG", msg, fields)
}
func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.record("INFO", msg, fields)
}
func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.record("WARN", msg, fields)
}
func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.record("ERROR", msg, fields)
}
func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.record("FATAL", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return &testLoggerScoped{parent: l, fields: map[string]interface{}{key: value}}
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return &testLoggerScoped{parent: l, fields: fields}
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *TestLogger) WithContext(ctx context.Context) Logger { return l }

func (l *TestLogger) GetZerolog() *zerolog.Logger { return l.zerolog }

// Messages returns a copy of all captured log messages
func (l *TestLogger) Messages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// HasMessage checks if a message containing the given text was logged
func (l *TestLogger) HasMessage(text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m.Message, text) {
			return true
		}
	}
	return false
}

// Clear drops all captured messages
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = l.messages[:0]
}

// testLoggerScoped carries accumulated fields back to the parent TestLogger
type testLoggerScoped struct {
	parent *TestLogger
	fields map[string]interface{}
}

func (s *testLoggerScoped) merged(extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(s.fields)+len(extra))
	for k, v := range s.fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (s *testLoggerScoped) Debug(msg string) { s.parent.record("DEBUG", msg, s.fields) }
func (s *testLoggerScoped) Info(msg string)  { s.parent.record("INFO", msg, s.fields) }
func (s *testLoggerScoped) Warn(msg string)  { s.parent.record("WARN", msg, s.fields) }
func (s *testLoggerScoped) Error(msg string) { s.parent.record("ERROR", msg, s.fields) }
func (s *testLoggerScoped) Fatal(msg string) { s.parent.record("FATAL", msg, s.fields) }

func (s *testLoggerScoped) DebugWithFields(msg string, fields map[string]interface{}) {
	s.parent.record("DEBUG", msg, s.merged(fields))
}
func (s *testLoggerScoped) InfoWithFields(msg string, fields map[string]interface{}) {
	s.parent.record("INFO", msg, s.merged(fields))
}
func (s *testLoggerScoped) WarnWithFields(msg string, fields map[string]interface{}) {
	s.parent.record("WARN", msg, s.merged(fields))
}
func (s *testLoggerScoped) ErrorWithFields(msg string, fields map[string]interface{}) {
	s.parent.record("ERROR", msg, s.merged(fields))
}
func (s *testLoggerScoped) FatalWithFields(msg string, fields map[string]interface{}) {
	s.parent.record("FATAL", msg, s.merged(fields))
}

func (s *testLoggerScoped) WithField(key string, value interface{}) Logger {
	return &testLoggerScoped{parent: s.parent, fields: s.merged(map[string]interface{}{key: value})}
}

func (s *testLoggerScoped) WithFields(fields map[string]interface{}) Logger {
	return &testLoggerScoped{parent: s.parent, fields: s.merged(fields)}
}

func (s *testLoggerScoped) WithError(err error) Logger {
	if err == nil {
		return s
	}
	return s.WithField("error", fmt.Sprintf("%v", err))
}

func (s *testLoggerScoped) WithContext(ctx context.Context) Logger { return s }

func (s *testLoggerScoped) GetZerolog() *zerolog.Logger { return s.parent.zerolog }
