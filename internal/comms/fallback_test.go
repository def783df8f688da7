package comms_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openworld-client/realm-runtime/internal/comms"
	"github.com/openworld-client/realm-runtime/internal/comms/mock"
	"github.com/openworld-client/realm-runtime/internal/resilience"
)

func TestFallbackDialerUsesPrimaryWhenItSucceeds(t *testing.T) {
	t.Parallel()

	primary := mock.NewDialer(mock.NewTransport())
	fallback := mock.NewDialer(mock.NewTransport())

	d := comms.NewFallbackDialer("primary", primary, resilience.FallbackConfig{})
	d.AddFallback("fallback", fallback)

	if _, err := d.Dial(context.Background(), "wss://example.org/room"); err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if len(primary.DialedURLs) != 1 {
		t.Errorf("primary dialed %d times, want 1", len(primary.DialedURLs))
	}
	if len(fallback.DialedURLs) != 0 {
		t.Errorf("fallback dialed %d times, want 0", len(fallback.DialedURLs))
	}
}

func TestFallbackDialerFallsBackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	primary := mock.NewDialer(mock.NewTransport())
	primary.DialError = errors.New("coder/websocket: connection refused")
	fallback := mock.NewDialer(mock.NewTransport())

	d := comms.NewFallbackDialer("primary", primary, resilience.FallbackConfig{})
	d.AddFallback("fallback", fallback)

	transport, err := d.Dial(context.Background(), "wss://example.org/room")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if transport != fallback.Transport {
		t.Error("Dial() did not return the fallback dialer's transport")
	}
	if len(fallback.DialedURLs) != 1 {
		t.Errorf("fallback dialed %d times, want 1", len(fallback.DialedURLs))
	}
}

func TestFallbackDialerReturnsErrorWhenAllFail(t *testing.T) {
	t.Parallel()

	primary := mock.NewDialer(mock.NewTransport())
	primary.DialError = errors.New("primary down")
	fallback := mock.NewDialer(mock.NewTransport())
	fallback.DialError = errors.New("fallback down")

	d := comms.NewFallbackDialer("primary", primary, resilience.FallbackConfig{})
	d.AddFallback("fallback", fallback)

	if _, err := d.Dial(context.Background(), "wss://example.org/room"); err == nil {
		t.Fatal("expected an error when every dialer fails, got nil")
	}
}
