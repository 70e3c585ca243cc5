package config

import (
	"io"
	"log/slog"
	"testing"
)

func TestInt(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("unset falls back", func(t *testing.T) {
		if got := Int(logger, "ORDERDESK_TEST_UNSET", 3); got != 3 {
			t.Errorf("expected fallback 3, got %d", got)
		}
	})

	t.Run("valid value is parsed", func(t *testing.T) {
		t.Setenv("ORDERDESK_TEST_INT", "45")
		if got := Int(logger, "ORDERDESK_TEST_INT", 3); got != 45 {
			t.Errorf("expected 45, got %d", got)
		}
	})

	t.Run("malformed value falls back", func(t *testing.T) {
		t.Setenv("ORDERDESK_TEST_INT", "ninety")
		if got := Int(logger, "ORDERDESK_TEST_INT", 3); got != 3 {
			t.Errorf("expected fallback 3, got %d", got)
		}
	})

	t.Run("non-positive value falls back", func(t *testing.T) {
		t.Setenv("ORDERDESK_TEST_INT", "0")
		if got := Int(logger, "ORDERDESK_TEST_INT", 3); got != 3 {
			t.Errorf("expected fallback 3, got %d", got)
		}
	})
}
