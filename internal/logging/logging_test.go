package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewRespectsVerboseFlag(t *testing.T) {
	quiet, err := New(false)
	if err != nil {
		t.Fatalf("New(false): %v", err)
	}
	if quiet.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("New(false) logger should not be enabled at debug level")
	}

	verbose, err := New(true)
	if err != nil {
		t.Fatalf("New(true): %v", err)
	}
	if !verbose.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("New(true) logger should be enabled at debug level")
	}
}

func TestNopIfNil(t *testing.T) {
	if NopIfNil(nil) == nil {
		t.Fatalf("NopIfNil(nil) returned nil")
	}
	l := zap.NewNop()
	if NopIfNil(l) != l {
		t.Fatalf("NopIfNil(l) should return l unchanged")
	}
}
