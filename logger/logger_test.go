package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestPrintfWritesToRegisteredOutput(t *testing.T) {
	resetGlobalLoggerForTest()
	Init("test", false, false)

	var buf bytes.Buffer
	if err := AddOutput(&buf); err != nil {
		t.Fatalf("AddOutput: %v", err)
	}
	defer RemoveOutput(&buf)

	Printf("hello %s", "world")

	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected output to contain message, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[test]") {
		t.Fatalf("expected output to contain prefix, got %q", buf.String())
	}
}

func TestDebugfSuppressedWhenNotVerbose(t *testing.T) {
	resetGlobalLoggerForTest()
	Init("test", false, false)

	var buf bytes.Buffer
	AddOutput(&buf)
	defer RemoveOutput(&buf)

	Debugf("should not appear")

	if buf.Len() != 0 {
		t.Fatalf("expected no output in non-verbose mode, got %q", buf.String())
	}
}

func TestDebugfEmittedWhenVerbose(t *testing.T) {
	resetGlobalLoggerForTest()
	Init("test", false, true)

	var buf bytes.Buffer
	AddOutput(&buf)
	defer RemoveOutput(&buf)

	Debugf("should appear")

	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected debug output in verbose mode, got %q", buf.String())
	}
}

func TestSetEnabledSuppressesOutput(t *testing.T) {
	resetGlobalLoggerForTest()
	Init("test", false, false)

	var buf bytes.Buffer
	AddOutput(&buf)
	defer RemoveOutput(&buf)

	SetEnabled(false)
	Printf("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output while disabled, got %q", buf.String())
	}

	SetEnabled(true)
	Printf("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatal("expected output after re-enabling")
	}
}

// resetGlobalLoggerForTest clears the sync.Once-guarded global logger so
// each test can Init with its own settings. Tests in this package never
// run in parallel for this reason.
func resetGlobalLoggerForTest() {
	globalLogger = nil
	once = sync.Once{}
}
