package event

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBus_FiltersByType(t *testing.T) {
	b := NewBus(zerolog.Nop())

	logoutOnly, cancel := b.Subscribe(TypeLogout)
	defer cancel()
	all, cancelAll := b.Subscribe()
	defer cancelAll()

	b.Emit(TypeLogin)
	b.Emit(TypeLogout)

	require.Equal(t, TypeLogout, recv(t, logoutOnly).Type)
	require.Equal(t, TypeLogin, recv(t, all).Type)
	require.Equal(t, TypeLogout, recv(t, all).Type)

	select {
	case evt := <-logoutOnly:
		t.Fatalf("unexpected event %s", evt.Type)
	default:
	}
}

func TestBus_PayloadDelivered(t *testing.T) {
	b := NewBus(zerolog.Nop())
	ch, cancel := b.Subscribe(TypeSessionExpired)
	defer cancel()

	b.Publish(Event{Type: TypeSessionExpired, Payload: "idle too long"})
	evt := recv(t, ch)
	require.Equal(t, "idle too long", evt.Payload)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(zerolog.Nop())
	ch, cancel := b.Subscribe(TypeLogin)

	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	b.Emit(TypeLogin)
}

func TestBus_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	b := NewBus(zerolog.Nop())
	ch, cancel := b.Subscribe(TypeLogin)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Emit(TypeLogin)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
	require.NotEmpty(t, ch)
}
