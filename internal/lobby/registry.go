package lobby

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zonezero/server/internal/identity"
)

// Registry owns every live lobby. A creator handle is the primary key (one
// lobby per creator at a time); lobby id and connection indexes give O(1)
// lookup for the id-addressed actions and for disconnect reconciliation.
//
// Lock discipline: the registry mutex guards only the three maps and is
// never held across a lobby mutex or a network send. Per-lobby state is
// serialized by that lobby's own mutex.
type Registry struct {
	mu        sync.Mutex
	byCreator map[string]*Lobby
	byID      map[uuid.UUID]*Lobby
	byConn    map[*Conn]*Lobby

	log *logrus.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		byCreator: make(map[string]*Lobby),
		byID:      make(map[uuid.UUID]*Lobby),
		byConn:    make(map[*Conn]*Lobby),
		log:       log,
	}
}

// Create validates the handle, allocates a fresh lobby keyed by it, and
// binds conn (if any) as the creator's live connection. A connection that is
// already in a lobby may not create another.
func (r *Registry) Create(creator string, conn *Conn) (*Lobby, error) {
	if !identity.Valid(creator) {
		return nil, ErrInvalidHandle
	}

	r.mu.Lock()
	if conn != nil {
		if _, bound := r.byConn[conn]; bound {
			r.mu.Unlock()
			return nil, ErrConnBound
		}
	}
	if _, dup := r.byCreator[creator]; dup {
		r.mu.Unlock()
		return nil, ErrDuplicateLobby
	}

	l := newLobby(creator)
	if conn != nil {
		l.conns[conn] = struct{}{} // lobby not yet published, no lobby lock needed
		r.byConn[conn] = l
		conn.bind(creator)
	}
	r.byCreator[creator] = l
	r.byID[l.ID] = l
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"lobby": l.ID, "creator": creator}).Info("lobby created")
	return l, nil
}

// Join adds joiner to the lobby keyed by creator, preserving insertion
// order, and attaches conn (if any) to that lobby's connection set.
func (r *Registry) Join(creator, joiner string, conn *Conn) (*Lobby, error) {
	if !identity.Valid(creator) || !identity.Valid(joiner) {
		return nil, ErrInvalidHandle
	}

	r.mu.Lock()
	if conn != nil {
		if _, bound := r.byConn[conn]; bound {
			r.mu.Unlock()
			return nil, ErrConnBound
		}
	}
	l, ok := r.byCreator[creator]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	l.Mu.Lock()
	if l.destroyed {
		l.Mu.Unlock()
		return nil, ErrNotFound
	}
	if len(l.Members) >= l.Capacity {
		l.Mu.Unlock()
		return nil, ErrFull
	}
	if l.HasMemberUnsafe(joiner) {
		l.Mu.Unlock()
		return nil, ErrAlreadyMember
	}
	if l.Status == StatusStarted {
		l.Mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	l.addMemberUnsafe(joiner)
	if conn != nil {
		l.conns[conn] = struct{}{}
		conn.bind(joiner)
	}
	l.Mu.Unlock()

	if conn != nil {
		r.mu.Lock()
		r.byConn[conn] = l
		r.mu.Unlock()
	}

	r.log.WithFields(logrus.Fields{"lobby": l.ID, "player": joiner}).Info("player joined")
	return l, nil
}

// BonusOverrides is the optional start-time bonus tuning.
type BonusOverrides struct {
	Durations   map[string]float64
	Multipliers map[string]float64
}

// Start transitions the lobby to started. Only the creator may start; the
// transition is one-way, and a repeat start by the creator simply resets
// the seed and is re-broadcast by the caller (reference behavior).
func (r *Registry) Start(id uuid.UUID, requester string, seed int64, overrides *BonusOverrides) (*Lobby, error) {
	l, ok := r.FindByID(id)
	if !ok {
		return nil, ErrNotFound
	}

	l.Mu.Lock()
	if l.destroyed {
		l.Mu.Unlock()
		return nil, ErrNotFound
	}
	if requester != l.Creator {
		l.Mu.Unlock()
		return nil, ErrNotCreator
	}
	l.Status = StatusStarted
	l.Seed = seed
	if overrides != nil {
		l.UpdateBonusUnsafe(overrides.Durations, overrides.Multipliers)
	}
	l.Mu.Unlock()

	r.log.WithFields(logrus.Fields{"lobby": l.ID, "seed": seed}).Info("game started")
	return l, nil
}

// FindByID looks a lobby up by its server-generated id.
func (r *Registry) FindByID(id uuid.UUID) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byID[id]
	return l, ok
}

// FindByCreator looks a lobby up by its primary key.
func (r *Registry) FindByCreator(creator string) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byCreator[creator]
	return l, ok
}

// LobbyFor returns the lobby a connection is attached to, if any.
func (r *Registry) LobbyFor(conn *Conn) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byConn[conn]
	return l, ok
}

// MemberRemoval reports what a RemoveMember call did, with the snapshots
// the caller needs for its broadcasts.
type MemberRemoval struct {
	Destroyed bool
	Members   []string
	Status    Status
	Survivors []*Conn
}

// RemoveMember removes handle from the lobby. Removing the creator destroys
// the lobby entirely; otherwise the lobby survives with the handle scrubbed
// from members, scores, positions and the ready set.
func (r *Registry) RemoveMember(l *Lobby, handle string) MemberRemoval {
	l.Mu.Lock()
	if l.destroyed {
		l.Mu.Unlock()
		return MemberRemoval{Destroyed: true}
	}
	if handle == l.Creator {
		l.Mu.Unlock()
		return MemberRemoval{Destroyed: true, Survivors: r.Destroy(l)}
	}
	l.removeMemberUnsafe(handle)
	members := l.MembersUnsafe()
	status := l.Status
	l.Mu.Unlock()

	r.log.WithFields(logrus.Fields{"lobby": l.ID, "player": handle}).Info("player removed")
	return MemberRemoval{Members: members, Status: status}
}

// Destroy removes the lobby and its connection set from every index and
// returns the connections that were still attached. The caller owns
// notifying and closing them.
func (r *Registry) Destroy(l *Lobby) []*Conn {
	l.Mu.Lock()
	if l.destroyed {
		l.Mu.Unlock()
		return nil
	}
	l.destroyed = true
	survivors := l.connsSnapshotUnsafe()
	l.conns = make(map[*Conn]struct{})
	l.Mu.Unlock()

	r.mu.Lock()
	delete(r.byCreator, l.Creator)
	delete(r.byID, l.ID)
	for _, c := range survivors {
		delete(r.byConn, c)
	}
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"lobby": l.ID, "creator": l.Creator}).Info("lobby destroyed")
	return survivors
}

// Detach removes conn from its lobby's connection set and the reverse
// index. No-op if the connection is not attached anywhere.
func (r *Registry) Detach(conn *Conn) (*Lobby, bool) {
	r.mu.Lock()
	l, ok := r.byConn[conn]
	if ok {
		delete(r.byConn, conn)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	l.Mu.Lock()
	delete(l.conns, conn)
	l.Mu.Unlock()
	return l, true
}

// Leave detaches conn and clears its handle binding, so the same
// connection can create or join another lobby afterwards. Used by the
// explicit leave action; disconnects keep the binding for reconciliation.
func (r *Registry) Leave(conn *Conn) {
	r.Detach(conn)
	conn.bind("")
}

// DisconnectOutcome describes the cleanup a lost connection caused.
type DisconnectOutcome struct {
	Lobby     *Lobby
	Destroyed bool
	Removed   string
	Members   []string
	Status    Status
	Survivors []*Conn
}

// ReconcileDisconnect handles an abrupt transport loss: detach the dead
// connection, destroy the lobby if its connection set emptied or if the
// departed handle was the creator, otherwise remove exactly that member.
// Connections learn their handle at create/join, so the removal is precise
// rather than the wipe-everyone approximation of earlier revisions.
func (r *Registry) ReconcileDisconnect(conn *Conn) (DisconnectOutcome, bool) {
	l, ok := r.Detach(conn)
	if !ok {
		return DisconnectOutcome{}, false
	}
	handle := conn.Handle()

	l.Mu.Lock()
	if l.destroyed {
		l.Mu.Unlock()
		return DisconnectOutcome{}, false
	}
	empty := len(l.conns) == 0
	creatorLeft := handle == l.Creator
	l.Mu.Unlock()

	if empty || creatorLeft {
		survivors := r.Destroy(l)
		return DisconnectOutcome{Lobby: l, Destroyed: true, Survivors: survivors}, true
	}

	rm := r.RemoveMember(l, handle)
	return DisconnectOutcome{
		Lobby:   l,
		Removed: handle,
		Members: rm.Members,
		Status:  rm.Status,
	}, true
}

// WaitingLobby is one row of a lobby listing.
type WaitingLobby struct {
	ID      uuid.UUID
	Creator string
	Players int
	Max     int
}

// ListWaiting snapshots every lobby still in the waiting state.
func (r *Registry) ListWaiting() []WaitingLobby {
	r.mu.Lock()
	all := make([]*Lobby, 0, len(r.byID))
	for _, l := range r.byID {
		all = append(all, l)
	}
	r.mu.Unlock()

	out := make([]WaitingLobby, 0, len(all))
	for _, l := range all {
		l.Mu.Lock()
		if l.Status == StatusWaiting && !l.destroyed {
			out = append(out, WaitingLobby{
				ID:      l.ID,
				Creator: l.Creator,
				Players: len(l.Members),
				Max:     l.Capacity,
			})
		}
		l.Mu.Unlock()
	}
	return out
}

// Broadcast queues msg on every connection attached to l except exclude.
// The connection set is snapshotted under the lobby lock and sends happen
// outside it, so one slow peer never stalls other mutators. A failed send
// closes that connection but leaves it attached: the close winds its pumps
// down, and the disconnect reconciliation that follows removes the member
// (or destroys the lobby when the connection was the creator's). Detaching
// here instead would make that reconciliation a no-op and leave a ghost
// member behind.
func (r *Registry) Broadcast(l *Lobby, msg any, exclude *Conn) {
	l.Mu.Lock()
	conns := l.connsSnapshotUnsafe()
	l.Mu.Unlock()

	for _, c := range conns {
		if c == exclude {
			continue
		}
		if !c.Send(msg) {
			r.log.WithFields(logrus.Fields{"lobby": l.ID, "player": c.Handle()}).Warn("closing dead connection during broadcast")
			c.Close()
		}
	}
}

// SendTo queues msg on the connection bound to handle within l. Reports
// whether a live connection was found. As in Broadcast, a dead target is
// closed but stays attached until its own disconnect reconciliation.
func (r *Registry) SendTo(l *Lobby, handle string, msg any) bool {
	l.Mu.Lock()
	var target *Conn
	for c := range l.conns {
		if c.Handle() == handle {
			target = c
			break
		}
	}
	l.Mu.Unlock()

	if target == nil {
		return false
	}
	if !target.Send(msg) {
		target.Close()
		return false
	}
	return true
}
