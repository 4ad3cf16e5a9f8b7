package core

import "testing"

func TestRegistryMultiDevice(t *testing.T) {
	reg := NewRegistry(8)

	identity := Identity{UserID: 1, Username: "alice"}
	phone := reg.Register(identity)
	laptop := reg.Register(identity)

	if phone.ID == laptop.ID {
		t.Fatal("connections must get distinct ids")
	}
	if reg.Len() != 2 || reg.Identities() != 1 {
		t.Fatalf("unexpected counts: %d conns, %d identities", reg.Len(), reg.Identities())
	}

	conns := reg.Connections(1)
	if len(conns) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(conns))
	}
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	reg := NewRegistry(8)
	conn := reg.Register(Identity{UserID: 1, Username: "alice"})

	if removed := reg.Unregister(conn.ID); removed == nil {
		t.Fatal("first unregister must return the connection")
	}
	if removed := reg.Unregister(conn.ID); removed != nil {
		t.Fatal("second unregister must be a no-op")
	}
	if removed := reg.Unregister("unknown"); removed != nil {
		t.Fatal("unknown id must be a no-op")
	}

	if reg.Len() != 0 || reg.Identities() != 0 {
		t.Fatal("registry must be empty")
	}
	if conn.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %v", conn.State())
	}
}

func TestRegistryTouchUpdatesActivity(t *testing.T) {
	reg := NewRegistry(8)
	conn := reg.Register(Identity{UserID: 1, Username: "alice"})

	before := conn.LastActive()
	conn.markIdle()
	reg.Touch(conn.ID)

	if conn.State() != StateActive {
		t.Fatalf("touch must reactivate, got %v", conn.State())
	}
	if conn.LastActive().Before(before) {
		t.Fatal("last activity must not go backwards")
	}
}

func TestDeliverToClosedConnFails(t *testing.T) {
	reg := NewRegistry(1)
	conn := reg.Register(Identity{UserID: 1})
	reg.Unregister(conn.ID)

	if err := conn.deliver(&Event{Kind: EventMessage}); err == nil {
		t.Fatal("delivery to a disconnected conn must fail")
	}
}
