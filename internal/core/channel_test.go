package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestRoomsJoinLeaveReplay(t *testing.T) {
	rooms := NewRooms()

	conns := make([]*Conn, 4)
	for i := range conns {
		conns[i] = newConn(fmt.Sprintf("c%d", i), Identity{UserID: int64(i)}, 4)
	}

	// Arbitrary join/leave sequence; final membership must equal the
	// set of connections with a net positive join.
	rooms.Join(conns[0], "ch", KindChat)
	rooms.Join(conns[1], "ch", KindChat)
	rooms.Join(conns[2], "ch", KindChat)
	if err := rooms.Leave(conns[1], "ch"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	rooms.Join(conns[3], "ch", KindChat)
	rooms.Join(conns[0], "ch", KindChat) // duplicate join, no-op
	if err := rooms.Leave(conns[2], "ch"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	members, err := rooms.Members("ch")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	got := make(map[string]bool, len(members))
	for _, m := range members {
		got[m.ID] = true
	}
	want := map[string]bool{"c0": true, "c3": true}
	if len(got) != len(want) {
		t.Fatalf("expected members %v, got %v", want, got)
	}
	for id := range want {
		if !got[id] {
			t.Fatalf("missing member %s", id)
		}
	}

	// The joined-set view must agree with the member-set view.
	for _, c := range conns {
		if c.inChannel("ch") != got[c.ID] {
			t.Fatalf("conn %s membership views disagree", c.ID)
		}
	}
}

func TestChannelDeletedWhenEmpty(t *testing.T) {
	rooms := NewRooms()
	conn := newConn("c1", Identity{UserID: 1}, 4)

	rooms.Join(conn, "ephemeral", KindMatch)
	if rooms.Len() != 1 {
		t.Fatalf("expected 1 channel, got %d", rooms.Len())
	}

	if err := rooms.Leave(conn, "ephemeral"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if rooms.Len() != 0 {
		t.Fatal("channel must vanish with its last member")
	}
	if _, err := rooms.Members("ephemeral"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestChannelKindFixedAtCreation(t *testing.T) {
	rooms := NewRooms()
	a := newConn("a", Identity{UserID: 1}, 4)
	b := newConn("b", Identity{UserID: 2}, 4)

	ch, _, err := rooms.Join(a, "stream-1", KindLive)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if ch.Kind != KindLive {
		t.Fatalf("expected live, got %s", ch.Kind)
	}

	// A later join with a different kind does not rewrite the channel.
	ch2, _, err := rooms.Join(b, "stream-1", KindChat)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if ch2.Kind != KindLive {
		t.Fatalf("expected kind to stay live, got %s", ch2.Kind)
	}

	kind, err := rooms.KindOf("stream-1")
	if err != nil || kind != KindLive {
		t.Fatalf("KindOf: %s, %v", kind, err)
	}
}

func TestJoinRefusedForDisconnectedConn(t *testing.T) {
	rooms := NewRooms()
	conn := newConn("c1", Identity{UserID: 1}, 4)
	conn.close()

	// A join landing after the connection was torn down must not
	// create membership, and a channel created for it must not outlive
	// the refusal.
	_, _, err := rooms.Join(conn, "fresh", KindChat)
	if !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
	if rooms.Len() != 0 {
		t.Fatalf("refused join leaked a channel: %d", rooms.Len())
	}
	if conn.inChannel("fresh") {
		t.Fatal("refused join leaked into the joined set")
	}

	// Same refusal against an existing channel leaves its members
	// untouched.
	alive := newConn("c2", Identity{UserID: 2}, 4)
	if _, _, err := rooms.Join(alive, "busy", KindChat); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := rooms.Join(conn, "busy", KindChat); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
	members, err := rooms.Members("busy")
	if err != nil || len(members) != 1 || members[0].ID != alive.ID {
		t.Fatalf("expected only the live member, got %d members, err %v", len(members), err)
	}
}

func TestMembersIsSnapshot(t *testing.T) {
	rooms := NewRooms()
	a := newConn("a", Identity{UserID: 1}, 4)
	b := newConn("b", Identity{UserID: 2}, 4)
	rooms.Join(a, "ch", KindChat)
	rooms.Join(b, "ch", KindChat)

	snapshot, err := rooms.Members("ch")
	if err != nil {
		t.Fatalf("members: %v", err)
	}

	if err := rooms.Leave(b, "ch"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	// The earlier snapshot is unaffected by the mutation.
	if len(snapshot) != 2 {
		t.Fatalf("snapshot changed under us: %d", len(snapshot))
	}
}
