package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPublishFansOutToOtherMembers(t *testing.T) {
	hub := newTestHub(Options{})

	alice := hub.Connect(Identity{UserID: 1, Username: "alice"})
	bob := hub.Connect(Identity{UserID: 2, Username: "bob"})
	carol := hub.Connect(Identity{UserID: 3, Username: "carol"})

	for _, c := range []*Conn{alice, bob, carol} {
		if _, err := hub.Join(c, "general", KindChat); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	drain(alice.Events)
	drain(bob.Events)
	drain(carol.Events)

	payload := json.RawMessage(`{"text":"hi"}`)
	delivery, err := hub.Publish(alice, "general", payload)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if delivery.Delivered != 2 || delivery.Dropped != 0 {
		t.Fatalf("unexpected delivery: %+v", delivery)
	}

	for _, c := range []*Conn{bob, carol} {
		ev := mustEvent(t, c.Events, EventMessage)
		if ev.Channel != "general" || ev.Sender.Username != "alice" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if string(ev.Payload) != `{"text":"hi"}` {
			t.Fatalf("unexpected payload: %s", ev.Payload)
		}
	}

	// Self-exclusion: the originating connection gets nothing.
	noEvent(t, alice.Events)
}

func TestPublishEchoSelf(t *testing.T) {
	hub := newTestHub(Options{EchoSelf: true})

	alice := hub.Connect(Identity{UserID: 1, Username: "alice"})
	if _, err := hub.Join(alice, "solo", KindChat); err != nil {
		t.Fatalf("join: %v", err)
	}
	drain(alice.Events)

	if _, err := hub.Publish(alice, "solo", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	mustEvent(t, alice.Events, EventMessage)
}

func TestMultiDeviceDelivery(t *testing.T) {
	hub := newTestHub(Options{})

	phone := hub.Connect(Identity{UserID: 1, Username: "alice"})
	laptop := hub.Connect(Identity{UserID: 1, Username: "alice"})

	if got := len(hub.Connections(1)); got != 2 {
		t.Fatalf("expected 2 connections for identity, got %d", got)
	}

	if _, err := hub.Join(phone, "general", KindChat); err != nil {
		t.Fatalf("join phone: %v", err)
	}
	if _, err := hub.Join(laptop, "general", KindChat); err != nil {
		t.Fatalf("join laptop: %v", err)
	}
	drain(phone.Events)
	drain(laptop.Events)

	if _, err := hub.Publish(phone, "general", json.RawMessage(`"x"`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Only the exact originating connection is excluded; the same
	// identity's other device still receives.
	mustEvent(t, laptop.Events, EventMessage)
	noEvent(t, phone.Events)
}

func TestPublishWithoutJoinRejected(t *testing.T) {
	hub := newTestHub(Options{})

	alice := hub.Connect(Identity{UserID: 1, Username: "alice"})
	bob := hub.Connect(Identity{UserID: 2, Username: "bob"})
	if _, err := hub.Join(bob, "general", KindChat); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := hub.Publish(alice, "general", nil); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	noEvent(t, bob.Events)
}

func TestJoinUnknownConnectionRejected(t *testing.T) {
	hub := newTestHub(Options{})

	ghost := newConn("ghost", Identity{UserID: 9, Username: "ghost"}, 4)
	if _, err := hub.Join(ghost, "general", KindChat); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestLeaveThenLeaveIsSafe(t *testing.T) {
	hub := newTestHub(Options{})

	alice := hub.Connect(Identity{UserID: 1, Username: "alice"})

	// Leave without prior join: reported, never a crash, no state change.
	if err := hub.Leave(alice, "general"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}

	if _, err := hub.Join(alice, "general", KindChat); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := hub.Leave(alice, "general"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := hub.Leave(alice, "general"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember on second leave, got %v", err)
	}
}

func TestDisconnectCascadesChannelTeardown(t *testing.T) {
	hub := newTestHub(Options{})

	alice := hub.Connect(Identity{UserID: 1, Username: "alice"})
	bob := hub.Connect(Identity{UserID: 2, Username: "bob"})

	// Alice is sole member of X and shares Y with Bob.
	if _, err := hub.Join(alice, "x", KindChat); err != nil {
		t.Fatalf("join x: %v", err)
	}
	if _, err := hub.Join(alice, "y", KindChat); err != nil {
		t.Fatalf("join y: %v", err)
	}
	if _, err := hub.Join(bob, "y", KindChat); err != nil {
		t.Fatalf("join y: %v", err)
	}

	hub.Disconnect(alice.ID)

	if _, err := hub.KindOf("x"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected x to be gone, got %v", err)
	}

	members, err := hub.rooms.Members("y")
	if err != nil {
		t.Fatalf("members y: %v", err)
	}
	if len(members) != 1 || members[0].ID != bob.ID {
		t.Fatalf("expected only bob in y, got %d members", len(members))
	}

	// Idempotent: a second disconnect is a no-op.
	hub.Disconnect(alice.ID)

	if stats := hub.Stats(); stats.Connections != 1 || stats.Channels != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDisconnectLeavesOtherDevicesAlone(t *testing.T) {
	hub := newTestHub(Options{})

	phone := hub.Connect(Identity{UserID: 1, Username: "alice"})
	laptop := hub.Connect(Identity{UserID: 1, Username: "alice"})

	hub.Disconnect(phone.ID)

	if phone.State() != StateDisconnected {
		t.Fatalf("expected phone disconnected, got %v", phone.State())
	}
	if laptop.State() == StateDisconnected {
		t.Fatal("laptop must not be affected by phone disconnect")
	}
	if got := len(hub.Connections(1)); got != 1 {
		t.Fatalf("expected 1 remaining connection, got %d", got)
	}
}

func TestPublishOrderingPerSender(t *testing.T) {
	hub := newTestHub(Options{SendBuffer: 128})

	alice := hub.Connect(Identity{UserID: 1, Username: "alice"})
	bob := hub.Connect(Identity{UserID: 2, Username: "bob"})
	if _, err := hub.Join(alice, "x", KindChat); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := hub.Join(bob, "x", KindChat); err != nil {
		t.Fatalf("join: %v", err)
	}
	drain(bob.Events)

	const n = 50
	for i := 0; i < n; i++ {
		payload, _ := json.Marshal(i)
		if _, err := hub.Publish(alice, "x", payload); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		ev := mustEvent(t, bob.Events, EventMessage)
		var got int
		if err := json.Unmarshal(ev.Payload, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got != i {
			t.Fatalf("out of order: expected %d, got %d", i, got)
		}
	}
}

func TestSlowConsumerIsIsolated(t *testing.T) {
	hub := newTestHub(Options{SendBuffer: 1})

	alice := hub.Connect(Identity{UserID: 1, Username: "alice"})
	bob := hub.Connect(Identity{UserID: 2, Username: "bob"})
	carol := hub.Connect(Identity{UserID: 3, Username: "carol"})
	for _, c := range []*Conn{alice, bob, carol} {
		if _, err := hub.Join(c, "x", KindChat); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	for _, c := range []*Conn{alice, bob, carol} {
		drain(c.Events)
	}

	// First publish fills bob's single-slot buffer; he never drains it.
	if _, err := hub.Publish(alice, "x", json.RawMessage(`1`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	drain(carol.Events)

	delivery, err := hub.Publish(alice, "x", json.RawMessage(`2`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if delivery.Dropped != 1 || delivery.Delivered != 1 {
		t.Fatalf("expected bob dropped and carol delivered, got %+v", delivery)
	}
	mustEvent(t, carol.Events, EventMessage)
}

func TestConcurrentDisconnectDuringPublish(t *testing.T) {
	hub := newTestHub(Options{SendBuffer: 256})

	sender := hub.Connect(Identity{UserID: 1, Username: "sender"})
	victim := hub.Connect(Identity{UserID: 2, Username: "victim"})
	if _, err := hub.Join(sender, "x", KindChat); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := hub.Join(victim, "x", KindChat); err != nil {
		t.Fatalf("join: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			drain(victim.Events)
			if _, err := hub.Publish(sender, "x", json.RawMessage(fmt.Sprintf("%d", i))); err != nil {
				t.Errorf("publish: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		hub.Disconnect(victim.ID)
	}()
	wg.Wait()

	// Past the removal point nothing reaches the victim anymore.
	drain(victim.Events)
	if _, err := hub.Publish(sender, "x", json.RawMessage(`"after"`)); err != nil {
		t.Fatalf("publish after disconnect: %v", err)
	}
	noEvent(t, victim.Events)
}

func TestJoinRacingDisconnectLeavesNoChannel(t *testing.T) {
	hub := newTestHub(Options{})

	conn := hub.Connect(Identity{UserID: 1, Username: "alice"})

	// Model the race where the registry liveness check has already
	// passed when the full disconnect (unregister plus eviction) runs,
	// and only then the in-flight room insert lands.
	hub.Disconnect(conn.ID)

	if _, _, err := hub.rooms.Join(conn, "ghost", KindChat); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
	if stats := hub.Stats(); stats.Channels != 0 || stats.Connections != 0 {
		t.Fatalf("late join leaked state: %+v", stats)
	}

	// Through the hub the same join is a plain authentication error.
	if _, err := hub.Join(conn, "ghost", KindChat); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestDisconnectReleasesIdentityGuardState(t *testing.T) {
	hub := newTestHub(Options{
		RateWindow:    time.Hour,
		RateMaxEvents: 1,
		RateScope:     ScopeIdentity,
	})

	phone := hub.Connect(Identity{UserID: 7, Username: "alice"})
	laptop := hub.Connect(Identity{UserID: 7, Username: "alice"})
	if !hub.guard.Admit(phone) {
		t.Fatal("first event should pass")
	}

	// While a device remains connected the shared budget survives.
	hub.Disconnect(phone.ID)
	if hub.guard.Admit(laptop) {
		t.Fatal("identity budget must survive a single device disconnect")
	}

	// The last disconnect releases the identity's window state.
	hub.Disconnect(laptop.ID)
	if got := len(hub.guard.hits); got != 0 {
		t.Fatalf("guard retains %d entries after all devices disconnected", got)
	}
}

func TestSweepMarksIdleAndEvicts(t *testing.T) {
	hub := newTestHub(Options{
		IdleTimeout:       1, // nanoseconds, so everything is overdue
		DisconnectTimeout: 0,
	})
	conn := hub.Connect(Identity{UserID: 1, Username: "alice"})

	hub.sweep()
	if conn.State() != StateIdle {
		t.Fatalf("expected idle, got %v", conn.State())
	}

	// Inbound activity flips the connection back to active.
	hub.Touch(conn.ID)
	if conn.State() != StateActive {
		t.Fatalf("expected active after touch, got %v", conn.State())
	}

	// With an eviction deadline, the sweep disconnects.
	hub.opts.DisconnectTimeout = 1
	hub.sweep()
	if conn.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %v", conn.State())
	}
	if hub.Stats().Connections != 0 {
		t.Fatal("expected empty registry after eviction")
	}
}
