package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	log.Info().Str("key", "value").Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("output missing field: %s", out)
	}
}

func TestWithContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	ctx := WithContext(context.Background(), log)
	got := FromContext(ctx)

	got.Info().Msg("from context")
	if !strings.Contains(buf.String(), "from context") {
		t.Errorf("context logger did not write to original buffer: %s", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	// Must not panic when no logger is attached.
	log := FromContext(context.Background())
	log.Debug().Msg("default logger")
}
