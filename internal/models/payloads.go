package models

// Outbound payloads. Broadcast frames carry an "action" tag so clients can
// switch on them; direct replies to a request omit it where the reference
// protocol did (create/join replies are recognized by shape).

// ErrorPayload is the only failure shape on the wire.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Ack is a bare confirmation reply.
type Ack struct {
	Message string `json:"message"`
}

// Pong answers a ping.
type Pong struct {
	Action string `json:"action"` // always "pong"
}

// LobbyCreated is the reply to a successful create.
type LobbyCreated struct {
	LobbyID string   `json:"lobby_id"`
	Creator string   `json:"creator"`
	Players []string `json:"players"`
	Status  string   `json:"status"`
}

// LobbyJoined is the reply to the joiner after a successful join.
type LobbyJoined struct {
	LobbyID string   `json:"lobby_id"`
	Creator string   `json:"creator"`
	Players []string `json:"players"`
}

// LobbyUpdate is the roster delta broadcast on join and non-creator leave.
type LobbyUpdate struct {
	Action  string   `json:"action"` // "lobby_update"
	LobbyID string   `json:"lobby_id"`
	Players []string `json:"players"`
	Status  string   `json:"status"`
}

// ItemState mirrors one lobby item on the wire.
type ItemState struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Collected bool    `json:"collected"`
	IsBonus   bool    `json:"is_bonus"`
	BonusType string  `json:"bonus_type,omitempty"`
}

// GameStarted is broadcast to the whole lobby when the creator starts.
type GameStarted struct {
	Action  string      `json:"action"` // "game_started"
	LobbyID string      `json:"lobby_id"`
	Players []string    `json:"players"`
	Status  string      `json:"status"`
	Seed    int64       `json:"seed"`
	Items   []ItemState `json:"items"`
}

// AllReady signals every member has readied up.
type AllReady struct {
	Action  string `json:"action"` // "all_ready"
	LobbyID string `json:"lobby_id"`
}

// LobbyClosed notifies survivors that their lobby was destroyed.
type LobbyClosed struct {
	Action  string `json:"action"` // "lobby_closed"
	LobbyID string `json:"lobby_id"`
}

// PositionUpdate replicates one player's position to the rest of the lobby.
type PositionUpdate struct {
	Action   string  `json:"action"` // "position_update"
	LobbyID  string  `json:"lobby_id"`
	Username string  `json:"username"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}

// ItemsRegistered is broadcast after the item map is replaced.
type ItemsRegistered struct {
	Action  string `json:"action"` // "items_registered"
	LobbyID string `json:"lobby_id"`
	Count   int    `json:"count"`
}

// ItemCollected is broadcast when an item or bonus is gathered.
type ItemCollected struct {
	Action   string         `json:"action"` // "item_collected"
	LobbyID  string         `json:"lobby_id"`
	ItemID   string         `json:"item_id"`
	Username string         `json:"username"`
	Scores   map[string]int `json:"scores"`
}

// ApplyEffect delivers a timed bonus effect to one affected member.
// Multiplier is present only for effects that have one configured.
type ApplyEffect struct {
	Action     string   `json:"action"` // "apply_effect"
	LobbyID    string   `json:"lobby_id"`
	Target     string   `json:"target"`
	Effect     string   `json:"effect"`
	Duration   float64  `json:"duration"`
	Multiplier *float64 `json:"multiplier,omitempty"`
}

// ChatMessage is the fan-out of a send_message.
type ChatMessage struct {
	Action   string `json:"action"` // "chat"
	LobbyID  string `json:"lobby_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// LobbySummary is one row in the get_lobbies reply.
type LobbySummary struct {
	LobbyID    string `json:"lobby_id"`
	Creator    string `json:"creator"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
}

// LobbyList is the get_lobbies reply.
type LobbyList struct {
	Action  string         `json:"action"` // "lobby_list"
	Lobbies []LobbySummary `json:"lobbies"`
}
