package lobby

import (
	"sync"

	"github.com/google/uuid"
)

// Status is the lobby lifecycle state. The only transition is
// StatusWaiting -> StatusStarted; it never reverses.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusStarted Status = "started"
)

// Capacity is the fixed member limit per lobby.
const Capacity = 4

// DefaultEffectDuration is used when a bonus type has no configured
// duration in the lobby's BonusConfig.
const DefaultEffectDuration = 5.0

// chatLogCap bounds the per-lobby chat log; oldest entries are dropped.
const chatLogCap = 200

// Position is a replicated 3D position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Item is a collectible placed in the arena. Bonus items grant a timed
// effect to the other members instead of score.
type Item struct {
	ID        string
	Position  Position
	Collected bool
	IsBonus   bool
	BonusType string
}

// ChatEntry is one line of the lobby chat log.
type ChatEntry struct {
	Author string
	Text   string
}

// BonusConfig holds the per-lobby bonus tuning: effect durations in seconds
// and speed multipliers, keyed by bonus type.
type BonusConfig struct {
	Durations   map[string]float64
	Multipliers map[string]float64
}

func defaultBonusConfig() BonusConfig {
	return BonusConfig{
		Durations: map[string]float64{
			"speed_boost": 5,
			"slowdown":    5,
			"shield":      4,
		},
		Multipliers: map[string]float64{
			"speed_boost": 1.5,
			"slowdown":    0.5,
		},
	}
}

// Lobby is one game session. Members is insertion-ordered (display/turn
// order); Scores, Positions and Ready are always keyed by a subset of
// Members. All mutable fields are guarded by Mu; methods with the Unsafe
// suffix assume the caller holds it.
type Lobby struct {
	ID       uuid.UUID
	Creator  string
	Members  []string
	Status   Status
	Capacity int

	Scores    map[string]int
	Positions map[string]Position
	Items     map[string]*Item
	Ready     map[string]bool
	Chat      []ChatEntry
	Seed      int64
	Bonus     BonusConfig

	// conns is the set of live connections subscribed to this lobby.
	// Maintained by the Registry, which also keeps the reverse index.
	conns map[*Conn]struct{}

	// destroyed marks a lobby that has been removed from the registry;
	// late-arriving actions against it report ErrNotFound.
	destroyed bool

	Mu sync.Mutex
}

func newLobby(creator string) *Lobby {
	return &Lobby{
		ID:        uuid.New(),
		Creator:   creator,
		Members:   []string{creator},
		Status:    StatusWaiting,
		Capacity:  Capacity,
		Scores:    map[string]int{creator: 0},
		Positions: map[string]Position{creator: {}},
		Items:     make(map[string]*Item),
		Ready:     make(map[string]bool),
		Bonus:     defaultBonusConfig(),
		conns:     make(map[*Conn]struct{}),
	}
}

// HasMemberUnsafe reports whether handle is in the roster.
func (l *Lobby) HasMemberUnsafe(handle string) bool {
	for _, m := range l.Members {
		if m == handle {
			return true
		}
	}
	return false
}

// addMemberUnsafe appends handle and seeds its score and position.
func (l *Lobby) addMemberUnsafe(handle string) {
	l.Members = append(l.Members, handle)
	l.Scores[handle] = 0
	l.Positions[handle] = Position{}
}

// removeMemberUnsafe drops handle from the roster and every keyed map.
func (l *Lobby) removeMemberUnsafe(handle string) {
	for i, m := range l.Members {
		if m == handle {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			break
		}
	}
	delete(l.Scores, handle)
	delete(l.Positions, handle)
	delete(l.Ready, handle)
}

// MembersUnsafe returns a copy of the roster.
func (l *Lobby) MembersUnsafe() []string {
	out := make([]string, len(l.Members))
	copy(out, l.Members)
	return out
}

// ScoresUnsafe returns a copy of the score map.
func (l *Lobby) ScoresUnsafe() map[string]int {
	out := make(map[string]int, len(l.Scores))
	for k, v := range l.Scores {
		out[k] = v
	}
	return out
}

// MarkReadyUnsafe records handle as ready and reports whether every member
// has now readied up.
func (l *Lobby) MarkReadyUnsafe(handle string) bool {
	l.Ready[handle] = true
	for _, m := range l.Members {
		if !l.Ready[m] {
			return false
		}
	}
	return true
}

// SetPositionUnsafe stores handle's authoritative position.
func (l *Lobby) SetPositionUnsafe(handle string, p Position) {
	l.Positions[handle] = p
}

// ReplaceItemsUnsafe swaps in a whole new item set, discarding the old one.
func (l *Lobby) ReplaceItemsUnsafe(items []*Item) int {
	l.Items = make(map[string]*Item, len(items))
	for _, it := range items {
		l.Items[it.ID] = it
	}
	return len(l.Items)
}

// ItemsUnsafe returns a snapshot of the item set.
func (l *Lobby) ItemsUnsafe() []Item {
	out := make([]Item, 0, len(l.Items))
	for _, it := range l.Items {
		out = append(out, *it)
	}
	return out
}

// CollectUnsafe marks itemID collected. With requireBonus set, non-bonus
// items are rejected before the collected check (collect_bonus contract).
func (l *Lobby) CollectUnsafe(itemID string, requireBonus bool) (*Item, error) {
	it, ok := l.Items[itemID]
	if !ok {
		return nil, ErrItemNotFound
	}
	if requireBonus && !it.IsBonus {
		return nil, ErrNotBonus
	}
	if it.Collected {
		return nil, ErrAlreadyCollected
	}
	it.Collected = true
	return it, nil
}

// AppendChatUnsafe appends one chat entry, evicting the oldest past the cap.
func (l *Lobby) AppendChatUnsafe(author, text string) {
	l.Chat = append(l.Chat, ChatEntry{Author: author, Text: text})
	if len(l.Chat) > chatLogCap {
		l.Chat = l.Chat[len(l.Chat)-chatLogCap:]
	}
}

// UpdateBonusUnsafe applies a partial bonus-config update: only supplied
// keys replace existing ones.
func (l *Lobby) UpdateBonusUnsafe(durations, multipliers map[string]float64) {
	for k, v := range durations {
		l.Bonus.Durations[k] = v
	}
	for k, v := range multipliers {
		l.Bonus.Multipliers[k] = v
	}
}

// EffectUnsafe resolves the broadcastable parameters for a bonus type:
// duration falls back to DefaultEffectDuration when unconfigured, and the
// multiplier is only reported when one exists for the type.
func (l *Lobby) EffectUnsafe(bonusType string) (duration float64, multiplier float64, hasMultiplier bool) {
	duration = DefaultEffectDuration
	if d, ok := l.Bonus.Durations[bonusType]; ok {
		duration = d
	}
	multiplier, hasMultiplier = l.Bonus.Multipliers[bonusType]
	return duration, multiplier, hasMultiplier
}

// connsSnapshotUnsafe copies the live connection set so sends can happen
// outside the lock.
func (l *Lobby) connsSnapshotUnsafe() []*Conn {
	out := make([]*Conn, 0, len(l.conns))
	for c := range l.conns {
		out = append(out, c)
	}
	return out
}
