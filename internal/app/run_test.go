package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	// Свободные порты, чтобы не конфликтовать с другими тестами на машине.
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.OpsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
