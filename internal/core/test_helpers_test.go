package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberlink/matchwire-server/internal/metrics"
)

func newTestHub(opts Options) *Hub {
	if opts.SendBuffer == 0 {
		opts.SendBuffer = 16
	}
	return NewHub(opts, zerolog.Nop(), metrics.NewNop())
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func noEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("expected no event, got kind %v on channel %q", ev.Kind, ev.Channel)
	default:
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
