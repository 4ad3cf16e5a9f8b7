package core

import "sync"

// Kind classifies what a channel is used for.
type Kind string

const (
	KindChat  Kind = "chat"
	KindLive  Kind = "live"
	KindMatch Kind = "match"
)

// ParseKind maps a wire string to a channel kind, defaulting to chat.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindLive:
		return KindLive
	case KindMatch:
		return KindMatch
	default:
		return KindChat
	}
}

// Channel groups connections receiving the same published events. It
// exists only while it has members.
type Channel struct {
	ID   string
	Kind Kind

	mu      sync.Mutex
	members map[string]*Conn
	dead    bool
}

// Rooms tracks live channels. Channels are created lazily on first
// join and removed when the last member leaves, so existence is derived
// purely from membership.
//
// Lock order: Rooms.mu before Channel.mu, never the reverse. Membership
// mutation on distinct channels only contends on the brief index lock.
type Rooms struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRooms constructs an empty channel index.
func NewRooms() *Rooms {
	return &Rooms{channels: make(map[string]*Channel)}
}

// Join adds conn to the channel, creating it if absent. The connection's
// joined set and the channel's member set are updated under the channel
// lock so the two views never disagree.
//
// A connection that reaches Disconnected is refused with ErrConnClosed:
// disconnect marks the state before evicting memberships, so a join
// racing the teardown either lands early enough for the eviction to
// sweep it, or sees the terminal state here and backs out. Without the
// recheck an evicted connection could be inserted after the eviction
// pass, leaving a channel that never empties.
func (r *Rooms) Join(conn *Conn, channelID string, kind Kind) (*Channel, bool, error) {
	for {
		r.mu.Lock()
		ch, ok := r.channels[channelID]
		if !ok {
			ch = &Channel{ID: channelID, Kind: kind, members: make(map[string]*Conn)}
			r.channels[channelID] = ch
		}
		ch.mu.Lock()
		r.mu.Unlock()

		if ch.dead {
			// Lost a race with the teardown of the last member.
			ch.mu.Unlock()
			continue
		}
		if conn.State() == StateDisconnected {
			ch.mu.Unlock()
			r.collapseIfEmpty(channelID)
			return nil, false, ErrConnClosed
		}
		if _, exists := ch.members[conn.ID]; exists {
			ch.mu.Unlock()
			return ch, false, nil
		}
		ch.members[conn.ID] = conn
		conn.addChannel(channelID)
		if conn.State() == StateDisconnected {
			// Disconnect raced the insert. The joined set was updated
			// before this load, so if the eviction pass already ran it
			// either removed the member or we roll it back here; both
			// paths leave no trace.
			delete(ch.members, conn.ID)
			conn.removeChannel(channelID)
			empty := len(ch.members) == 0
			ch.mu.Unlock()
			if empty {
				r.collapseIfEmpty(channelID)
			}
			return nil, false, ErrConnClosed
		}
		ch.mu.Unlock()
		return ch, true, nil
	}
}

// collapseIfEmpty deletes the channel record if it has no members,
// keeping channel existence derived purely from membership when a join
// backs out of a channel it just created.
func (r *Rooms) collapseIfEmpty(channelID string) {
	r.mu.Lock()
	if ch, ok := r.channels[channelID]; ok {
		ch.mu.Lock()
		if len(ch.members) == 0 {
			ch.dead = true
			delete(r.channels, channelID)
		}
		ch.mu.Unlock()
	}
	r.mu.Unlock()
}

// Leave removes conn from the channel. The channel record is deleted
// once its membership becomes empty. Returns ErrNotMember when the
// connection never joined (including leave-after-leave), which callers
// report to the originating connection only.
func (r *Rooms) Leave(conn *Conn, channelID string) error {
	r.mu.Lock()
	ch, ok := r.channels[channelID]
	if !ok {
		r.mu.Unlock()
		return ErrNotMember
	}
	ch.mu.Lock()
	if _, exists := ch.members[conn.ID]; !exists {
		ch.mu.Unlock()
		r.mu.Unlock()
		return ErrNotMember
	}
	delete(ch.members, conn.ID)
	conn.removeChannel(channelID)
	if len(ch.members) == 0 {
		ch.dead = true
		delete(r.channels, channelID)
	}
	ch.mu.Unlock()
	r.mu.Unlock()
	return nil
}

// Evict removes conn from every channel it joined, tearing down the
// ones left empty. Used by the registry on disconnect.
func (r *Rooms) Evict(conn *Conn) {
	for _, channelID := range conn.Channels() {
		_ = r.Leave(conn, channelID)
	}
}

// Members returns a point-in-time snapshot of the channel's member
// connections, safe to iterate while membership keeps changing.
func (r *Rooms) Members(channelID string) ([]*Conn, error) {
	r.mu.RLock()
	ch, ok := r.channels[channelID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrChannelNotFound
	}

	ch.mu.Lock()
	out := make([]*Conn, 0, len(ch.members))
	for _, c := range ch.members {
		out = append(out, c)
	}
	ch.mu.Unlock()
	return out, nil
}

// KindOf reports the kind a live channel was created with.
func (r *Rooms) KindOf(channelID string) (Kind, error) {
	r.mu.RLock()
	ch, ok := r.channels[channelID]
	r.mu.RUnlock()
	if !ok {
		return "", ErrChannelNotFound
	}
	return ch.Kind, nil
}

// Len returns the number of live channels.
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
