// Package logging provides structured logging on top of zap, bridged to
// OpenTelemetry logs, matching the teacher's pkg/logging/logger.go idiom.
package logging

import (
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	otellog "go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"botsupervisor/internal/core"
)

// redactedKeys names the field keys that must never reach a log sink in
// clear text (spec.md property 5: no-credential-leak).
var redactedKeys = map[string]bool{
	"apiSecret": true,
	"apisecret": true,
	"secret":    true,
	"api_secret": true,
}

const redactedValue = "***redacted***"

// Logger implements core.ILogger on top of zap.SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger at the given level, writing console-encoded output
// to stdout and bridging to the global OTel logger provider.
func New(levelStr string) (*Logger, error) {
	level := parseLevel(levelStr)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(os.Stdout)),
		level,
	)

	otelCore := otelzap.NewCore("botsupervisor", otelzap.WithLoggerProvider(otellog.GetLoggerProvider()))
	combined := zapcore.NewTee(consoleCore, otelCore)

	zl := zap.New(combined, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{sugar: zl.Sugar()}, nil
}

func parseLevel(levelStr string) zapcore.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return zap.DebugLevel
	case "WARN":
		return zap.WarnLevel
	case "ERROR":
		return zap.ErrorLevel
	case "FATAL":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

// redact walks the alternating key/value pairs and masks any key in
// redactedKeys, regardless of the logger's configured level — this
// guarantee must hold even for Debug-level entries.
func redact(fields []interface{}) []interface{} {
	out := make([]interface{}, len(fields))
	copy(out, fields)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if redactedKeys[strings.ToLower(key)] {
			out[i+1] = redactedValue
		}
	}
	return out
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.sugar.Debugw(msg, redact(fields)...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.sugar.Infow(msg, redact(fields)...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.sugar.Warnw(msg, redact(fields)...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.sugar.Errorw(msg, redact(fields)...) }
func (l *Logger) Fatal(msg string, fields ...interface{}) { l.sugar.Fatalw(msg, redact(fields)...) }

func (l *Logger) WithField(key string, value interface{}) core.ILogger {
	if redactedKeys[strings.ToLower(key)] {
		value = redactedValue
	}
	return &Logger{sugar: l.sugar.With(key, value)}
}

func (l *Logger) WithFields(fields map[string]interface{}) core.ILogger {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		if redactedKeys[strings.ToLower(k)] {
			v = redactedValue
		}
		kv = append(kv, k, v)
	}
	return &Logger{sugar: l.sugar.With(kv...)}
}
