// Package logger provides a configurable logger that can write to
// multiple outputs. Init must be called early in the application
// lifecycle before using other logger functions. Functions like
// AddOutput and SetEnabled will return errors if called before Init.
//
// Internally this is backed by go.uber.org/zap: outputs are combined
// into a single zapcore.Core so that Printf/Infof/Errorf/Debugf route
// through one structured logger instead of ad-hoc fmt.Fprintf calls,
// while the public surface (Init/AddOutput/RemoveOutput/SetEnabled)
// keeps the shape this module's callers and its TUI dashboard already
// expect.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a configurable logger that can write to multiple outputs.
type Logger struct {
	mu      sync.Mutex
	outputs []io.Writer
	prefix  string
	enabled bool
	verbose bool
	sugar   *zap.SugaredLogger
}

var (
	globalLogger *Logger
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

// GetGlobalLogBuffer returns the global log buffer.
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000)
	})
	return globalBuffer
}

// Init initializes the global logger. verbose controls whether Debugf
// calls are emitted, per spec.md §6's "under non-verbose mode the
// heartbeat/suspect detectors suppress per-event traces."
func Init(prefix string, writeToStdout bool, verbose bool) {
	once.Do(func() {
		outputs := []io.Writer{}
		if writeToStdout {
			outputs = append(outputs, os.Stdout)
		}
		globalLogger = &Logger{
			outputs: outputs,
			prefix:  prefix,
			enabled: true,
			verbose: verbose,
		}
		globalLogger.rebuild()
	})
}

// rebuild reconstructs the zap core from the current output set. Caller
// must hold globalLogger.mu.
func (l *Logger) rebuild() {
	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "M",
		LineEnding: zapcore.DefaultLineEnding,
	}
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	level := zapcore.InfoLevel
	if l.verbose {
		level = zapcore.DebugLevel
	}

	var writer zapcore.WriteSyncer
	if len(l.outputs) == 0 {
		writer = zapcore.AddSync(io.Discard)
	} else {
		writer = zapcore.AddSync(io.MultiWriter(l.outputs...))
	}

	core := zapcore.NewCore(encoder, writer, level)
	l.sugar = zap.New(core).Sugar()
}

// AddOutput adds an additional output writer (e.g., for TUI log buffer).
// Returns an error if called before Init.
func AddOutput(w io.Writer) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.outputs = append(globalLogger.outputs, w)
	globalLogger.rebuild()
	return nil
}

// RemoveOutput removes an output writer.
// Returns an error if called before Init.
func RemoveOutput(w io.Writer) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	newOutputs := []io.Writer{}
	for _, output := range globalLogger.outputs {
		if output != w {
			newOutputs = append(newOutputs, output)
		}
	}
	globalLogger.outputs = newOutputs
	globalLogger.rebuild()
	return nil
}

// SetEnabled enables or disables logging.
// Returns an error if called before Init.
func SetEnabled(enabled bool) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.enabled = enabled
	return nil
}

// SetVerbose toggles whether Debugf output is emitted.
// Returns an error if called before Init.
func SetVerbose(verbose bool) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.verbose = verbose
	globalLogger.rebuild()
	return nil
}

func withPrefix(prefix, format string) string {
	if prefix == "" {
		return format
	}
	return "[" + prefix + "] " + format
}

// Printf logs a formatted message at info level.
func Printf(format string, v ...interface{}) {
	if globalLogger == nil {
		log.Printf(format, v...)
		return
	}
	globalLogger.mu.Lock()
	enabled := globalLogger.enabled
	sugar := globalLogger.sugar
	prefix := globalLogger.prefix
	globalLogger.mu.Unlock()
	if !enabled {
		return
	}
	sugar.Infof(withPrefix(prefix, format), v...)
}

// Print logs a message.
func Print(v ...interface{}) {
	Printf("%s", fmt.Sprint(v...))
}

// Println logs a message.
func Println(v ...interface{}) {
	Printf("%s", fmt.Sprintln(v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...interface{}) {
	Printf(format, v...)
}

// Info logs an info-level message.
func Info(v ...interface{}) {
	Printf("%s", fmt.Sprint(v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...interface{}) {
	if globalLogger == nil {
		log.Printf("[ERROR] "+format, v...)
		return
	}
	globalLogger.mu.Lock()
	enabled := globalLogger.enabled
	sugar := globalLogger.sugar
	prefix := globalLogger.prefix
	globalLogger.mu.Unlock()
	if !enabled {
		return
	}
	sugar.Errorf(withPrefix(prefix, format), v...)
}

// Error logs an error-level message.
func Error(v ...interface{}) {
	Errorf("%s", fmt.Sprint(v...))
}

// Debugf logs a debug-level formatted message. Suppressed unless the
// logger was initialized (or later set) verbose, per spec.md §6.
func Debugf(format string, v ...interface{}) {
	if globalLogger == nil {
		return
	}
	globalLogger.mu.Lock()
	enabled := globalLogger.enabled
	sugar := globalLogger.sugar
	prefix := globalLogger.prefix
	globalLogger.mu.Unlock()
	if !enabled {
		return
	}
	sugar.Debugf(withPrefix(prefix, format), v...)
}

// GetGlobalLogger returns the global logger instance (for testing/debugging).
func GetGlobalLogger() *Logger {
	return globalLogger
}
