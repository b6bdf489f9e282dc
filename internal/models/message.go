// Package models defines the wire protocol for the lobby channel.
//
// Inbound frames are a tagged union: every frame carries an "action" string
// and the remaining fields depend on it. Each action gets its own request
// struct here so field validation happens at the boundary instead of ad-hoc
// map lookups in handler code.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Action tags accepted on the live channel.
const (
	ActionCreate         = "create"
	ActionJoin           = "join"
	ActionStart          = "start"
	ActionReady          = "ready"
	ActionLeave          = "leave"
	ActionUpdatePosition = "update_position"
	ActionRegisterItems  = "register_items"
	ActionCollectItem    = "collect_item"
	ActionCollectBonus   = "collect_bonus"
	ActionSetBonusData   = "set_bonus_data"
	ActionSendMessage    = "send_message"
	ActionGetLobbies     = "get_lobbies"
	ActionPing           = "ping"
)

// Envelope is the first-pass decode of any inbound frame.
type Envelope struct {
	Action string `json:"action"`
}

// Coord is a single position component. Clients are not consistent about
// sending numbers vs numeric strings, so both are accepted; anything else
// is a decode error.
type Coord float64

func (c *Coord) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("non-numeric coordinate %q", str)
		}
		*c = Coord(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("non-numeric coordinate %s", s)
	}
	*c = Coord(f)
	return nil
}

// BonusData carries per-lobby bonus tuning: effect durations in seconds and
// speed multipliers, both keyed by bonus type. Partial maps are fine; only
// the supplied keys replace existing config.
type BonusData struct {
	Durations   map[string]float64 `json:"durations,omitempty"`
	Multipliers map[string]float64 `json:"multipliers,omitempty"`
}

// ItemSpec describes one item in a register_items payload.
type ItemSpec struct {
	ID        string `json:"id"`
	X         Coord  `json:"x"`
	Y         Coord  `json:"y"`
	Z         Coord  `json:"z"`
	IsBonus   bool   `json:"is_bonus"`
	BonusType string `json:"bonus_type"`
}

type CreateRequest struct {
	Username string `json:"username"`
}

type JoinRequest struct {
	Creator  string `json:"creator"`
	Username string `json:"username"`
}

type StartRequest struct {
	LobbyID   string     `json:"lobby_id"`
	Username  string     `json:"username"`
	Seed      int64      `json:"seed"`
	BonusData *BonusData `json:"bonus_data,omitempty"`
}

type ReadyRequest struct {
	LobbyID  string `json:"lobby_id"`
	Username string `json:"username"`
}

type LeaveRequest struct {
	LobbyID  string `json:"lobby_id"`
	Username string `json:"username"`
}

type PositionRequest struct {
	LobbyID  string `json:"lobby_id"`
	Username string `json:"username"`
	X        Coord  `json:"x"`
	Y        Coord  `json:"y"`
	Z        Coord  `json:"z"`
}

type RegisterItemsRequest struct {
	LobbyID string     `json:"lobby_id"`
	Items   []ItemSpec `json:"items"`
}

type CollectRequest struct {
	LobbyID  string `json:"lobby_id"`
	Username string `json:"username"`
	ItemID   string `json:"item_id"`
}

type SetBonusDataRequest struct {
	LobbyID   string    `json:"lobby_id"`
	Username  string    `json:"username"`
	BonusData BonusData `json:"bonus_data"`
}

type ChatRequest struct {
	LobbyID  string `json:"lobby_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}
