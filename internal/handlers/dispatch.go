package handlers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zonezero/server/internal/events"
	"github.com/zonezero/server/internal/lobby"
	"github.com/zonezero/server/internal/models"
)

// Dispatch interprets one inbound frame against current lobby and
// connection state. Every precondition failure replies to the sender only
// and performs no mutation and no broadcast. Mutating actions broadcast to
// the room first, then ack the actor.
func (s *Server) Dispatch(raw []byte, conn *lobby.Conn) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		conn.Send(models.ErrorPayload{Error: "Invalid JSON format"})
		return
	}

	switch env.Action {
	case models.ActionCreate:
		var req models.CreateRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleCreate(conn, req)
	case models.ActionJoin:
		var req models.JoinRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleJoin(conn, req)
	case models.ActionStart:
		var req models.StartRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleStart(conn, req)
	case models.ActionReady:
		var req models.ReadyRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleReady(conn, req)
	case models.ActionLeave:
		var req models.LeaveRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleLeave(conn, req)
	case models.ActionUpdatePosition:
		var req models.PositionRequest
		if !s.decode(raw, &req, conn, "Invalid position data") {
			return
		}
		s.handleUpdatePosition(conn, req)
	case models.ActionRegisterItems:
		var req models.RegisterItemsRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleRegisterItems(conn, req)
	case models.ActionCollectItem:
		var req models.CollectRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleCollect(conn, req, false)
	case models.ActionCollectBonus:
		var req models.CollectRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleCollect(conn, req, true)
	case models.ActionSetBonusData:
		var req models.SetBonusDataRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleSetBonusData(conn, req)
	case models.ActionSendMessage:
		var req models.ChatRequest
		if !s.decode(raw, &req, conn, "Invalid payload") {
			return
		}
		s.handleSendMessage(conn, req)
	case models.ActionGetLobbies:
		s.handleGetLobbies(conn)
	case models.ActionPing:
		conn.Send(models.Pong{Action: "pong"})
	default:
		conn.Send(models.ErrorPayload{Error: fmt.Sprintf("Unknown action: %s", env.Action)})
	}
}

// decode unmarshals the frame into the action-specific struct, replying
// with errMsg on malformed payloads.
func (s *Server) decode(raw []byte, v any, conn *lobby.Conn, errMsg string) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		s.Log.Warnf("malformed %T payload: %v", v, err)
		conn.Send(models.ErrorPayload{Error: errMsg})
		return false
	}
	return true
}

// lobbyByID resolves an id string from the wire; malformed ids read as
// not-found, matching the reference behavior.
func (s *Server) lobbyByID(idStr string) (*lobby.Lobby, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, lobby.ErrNotFound
	}
	l, ok := s.Registry.FindByID(id)
	if !ok {
		return nil, lobby.ErrNotFound
	}
	return l, nil
}

func (s *Server) handleCreate(conn *lobby.Conn, req models.CreateRequest) {
	l, err := s.Registry.Create(req.Username, conn)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	l.Mu.Lock()
	members := l.MembersUnsafe()
	status := l.Status
	l.Mu.Unlock()

	conn.Send(models.LobbyCreated{
		LobbyID: l.ID.String(),
		Creator: l.Creator,
		Players: members,
		Status:  string(status),
	})
	s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: "lobby_created", Actor: req.Username})
}

func (s *Server) handleJoin(conn *lobby.Conn, req models.JoinRequest) {
	l, err := s.Registry.Join(req.Creator, req.Username, conn)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	l.Mu.Lock()
	members := l.MembersUnsafe()
	status := l.Status
	l.Mu.Unlock()

	s.Registry.Broadcast(l, models.LobbyUpdate{
		Action:  "lobby_update",
		LobbyID: l.ID.String(),
		Players: members,
		Status:  string(status),
	}, nil)
	conn.Send(models.LobbyJoined{
		LobbyID: l.ID.String(),
		Creator: l.Creator,
		Players: members,
	})
	s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: "player_joined", Actor: req.Username})
}

func (s *Server) handleStart(conn *lobby.Conn, req models.StartRequest) {
	id, err := uuid.Parse(req.LobbyID)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(lobby.ErrNotFound)})
		return
	}
	var overrides *lobby.BonusOverrides
	if req.BonusData != nil {
		overrides = &lobby.BonusOverrides{
			Durations:   req.BonusData.Durations,
			Multipliers: req.BonusData.Multipliers,
		}
	}
	l, err := s.Registry.Start(id, req.Username, req.Seed, overrides)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	l.Mu.Lock()
	members := l.MembersUnsafe()
	items := l.ItemsUnsafe()
	seed := l.Seed
	l.Mu.Unlock()

	s.Registry.Broadcast(l, models.GameStarted{
		Action:  "game_started",
		LobbyID: l.ID.String(),
		Players: members,
		Status:  string(lobby.StatusStarted),
		Seed:    seed,
		Items:   itemStates(items),
	}, nil)
	conn.Send(models.Ack{Message: "The game has started"})
	s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: "game_started", Actor: req.Username, Payload: map[string]any{"seed": seed}})
}

func (s *Server) handleReady(conn *lobby.Conn, req models.ReadyRequest) {
	l, err := s.lobbyByID(req.LobbyID)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	l.Mu.Lock()
	if !l.HasMemberUnsafe(req.Username) {
		l.Mu.Unlock()
		conn.Send(models.ErrorPayload{Error: wireError(lobby.ErrNotMember)})
		return
	}
	allReady := l.MarkReadyUnsafe(req.Username)
	l.Mu.Unlock()

	if allReady {
		s.Registry.Broadcast(l, models.AllReady{Action: "all_ready", LobbyID: l.ID.String()}, nil)
	}
}

func (s *Server) handleLeave(conn *lobby.Conn, req models.LeaveRequest) {
	l, err := s.lobbyByID(req.LobbyID)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	// The named lobby must be the one this connection is actually in:
	// acting on a stale or mismatched id would detach the sender from its
	// real lobby and mutate somebody else's roster.
	if bound, ok := s.Registry.LobbyFor(conn); ok && bound != l {
		conn.Send(models.ErrorPayload{Error: wireError(lobby.ErrNotMember)})
		return
	}

	l.Mu.Lock()
	isMember := l.HasMemberUnsafe(req.Username)
	l.Mu.Unlock()
	if !isMember {
		conn.Send(models.ErrorPayload{Error: wireError(lobby.ErrNotMember)})
		return
	}

	if conn != nil {
		s.Registry.Leave(conn)
	}

	rm := s.Registry.RemoveMember(l, req.Username)
	if rm.Destroyed {
		s.closeSurvivors(l, rm.Survivors)
		conn.Send(models.Ack{Message: "Lobby closed"})
		s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: "lobby_destroyed", Actor: req.Username})
		return
	}

	s.Registry.Broadcast(l, models.LobbyUpdate{
		Action:  "lobby_update",
		LobbyID: l.ID.String(),
		Players: rm.Members,
		Status:  string(rm.Status),
	}, nil)
	conn.Send(models.Ack{Message: "You left the lobby"})
	s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: "player_left", Actor: req.Username})
}

func (s *Server) handleUpdatePosition(conn *lobby.Conn, req models.PositionRequest) {
	l, err := s.lobbyByID(req.LobbyID)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	pos := lobby.Position{X: float64(req.X), Y: float64(req.Y), Z: float64(req.Z)}

	l.Mu.Lock()
	if !l.HasMemberUnsafe(req.Username) {
		l.Mu.Unlock()
		conn.Send(models.ErrorPayload{Error: wireError(lobby.ErrNotMember)})
		return
	}
	l.SetPositionUnsafe(req.Username, pos)
	l.Mu.Unlock()

	// The sender already knows where it is; everyone else gets the delta.
	s.Registry.Broadcast(l, models.PositionUpdate{
		Action:   "position_update",
		LobbyID:  l.ID.String(),
		Username: req.Username,
		X:        pos.X,
		Y:        pos.Y,
		Z:        pos.Z,
	}, conn)
}

func (s *Server) handleRegisterItems(conn *lobby.Conn, req models.RegisterItemsRequest) {
	l, err := s.lobbyByID(req.LobbyID)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	items := make([]*lobby.Item, 0, len(req.Items))
	for i, spec := range req.Items {
		id := spec.ID
		if id == "" {
			id = fmt.Sprintf("item_%d", i+1)
		}
		items = append(items, &lobby.Item{
			ID:        id,
			Position:  lobby.Position{X: float64(spec.X), Y: float64(spec.Y), Z: float64(spec.Z)},
			IsBonus:   spec.IsBonus,
			BonusType: spec.BonusType,
		})
	}

	l.Mu.Lock()
	count := l.ReplaceItemsUnsafe(items)
	l.Mu.Unlock()

	s.Registry.Broadcast(l, models.ItemsRegistered{
		Action:  "items_registered",
		LobbyID: l.ID.String(),
		Count:   count,
	}, nil)
}

func (s *Server) handleCollect(conn *lobby.Conn, req models.CollectRequest, bonus bool) {
	l, err := s.lobbyByID(req.LobbyID)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	l.Mu.Lock()
	if !l.HasMemberUnsafe(req.Username) {
		l.Mu.Unlock()
		conn.Send(models.ErrorPayload{Error: wireError(lobby.ErrNotMember)})
		return
	}
	it, err := l.CollectUnsafe(req.ItemID, bonus)
	if err != nil {
		l.Mu.Unlock()
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}
	if !bonus {
		l.Scores[req.Username]++
	}
	scores := l.ScoresUnsafe()
	members := l.MembersUnsafe()
	var duration, multiplier float64
	var hasMultiplier bool
	if bonus {
		duration, multiplier, hasMultiplier = l.EffectUnsafe(it.BonusType)
	}
	bonusType := it.BonusType
	l.Mu.Unlock()

	s.Registry.Broadcast(l, models.ItemCollected{
		Action:   "item_collected",
		LobbyID:  l.ID.String(),
		ItemID:   req.ItemID,
		Username: req.Username,
		Scores:   scores,
	}, nil)

	if bonus {
		for _, m := range members {
			if m == req.Username {
				continue
			}
			eff := models.ApplyEffect{
				Action:   "apply_effect",
				LobbyID:  l.ID.String(),
				Target:   m,
				Effect:   bonusType,
				Duration: duration,
			}
			if hasMultiplier {
				v := multiplier
				eff.Multiplier = &v
			}
			s.Registry.SendTo(l, m, eff)
		}
	}

	action := "item_collected"
	if bonus {
		action = "bonus_collected"
	}
	s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: action, Actor: req.Username, Payload: map[string]any{"item_id": req.ItemID}})
}

func (s *Server) handleSetBonusData(conn *lobby.Conn, req models.SetBonusDataRequest) {
	l, err := s.lobbyByID(req.LobbyID)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	l.Mu.Lock()
	if !l.HasMemberUnsafe(req.Username) {
		l.Mu.Unlock()
		conn.Send(models.ErrorPayload{Error: wireError(lobby.ErrNotMember)})
		return
	}
	l.UpdateBonusUnsafe(req.BonusData.Durations, req.BonusData.Multipliers)
	l.Mu.Unlock()

	conn.Send(models.Ack{Message: "Bonus data updated"})
}

func (s *Server) handleSendMessage(conn *lobby.Conn, req models.ChatRequest) {
	l, err := s.lobbyByID(req.LobbyID)
	if err != nil {
		conn.Send(models.ErrorPayload{Error: wireError(err)})
		return
	}

	l.Mu.Lock()
	if !l.HasMemberUnsafe(req.Username) {
		l.Mu.Unlock()
		conn.Send(models.ErrorPayload{Error: wireError(lobby.ErrNotMember)})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		l.Mu.Unlock()
		conn.Send(models.ErrorPayload{Error: wireError(lobby.ErrEmptyMessage)})
		return
	}
	l.AppendChatUnsafe(req.Username, req.Message)
	l.Mu.Unlock()

	s.Registry.Broadcast(l, models.ChatMessage{
		Action:   "chat",
		LobbyID:  l.ID.String(),
		Username: req.Username,
		Message:  req.Message,
	}, nil)
	s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: "chat", Actor: req.Username})
}

func (s *Server) handleGetLobbies(conn *lobby.Conn) {
	conn.Send(lobbyList(s.Registry))
}

// closeSurvivors pushes the closure notice to every remaining connection of
// a destroyed lobby, then closes them so their pumps wind down.
func (s *Server) closeSurvivors(l *lobby.Lobby, survivors []*lobby.Conn) {
	notice := models.LobbyClosed{Action: "lobby_closed", LobbyID: l.ID.String()}
	for _, c := range survivors {
		c.Send(notice)
		c.Close()
	}
}

func lobbyList(r *lobby.Registry) models.LobbyList {
	waiting := r.ListWaiting()
	out := models.LobbyList{Action: "lobby_list", Lobbies: make([]models.LobbySummary, 0, len(waiting))}
	for _, w := range waiting {
		out.Lobbies = append(out.Lobbies, models.LobbySummary{
			LobbyID:    w.ID.String(),
			Creator:    w.Creator,
			Players:    w.Players,
			MaxPlayers: w.Max,
		})
	}
	return out
}

func itemStates(items []lobby.Item) []models.ItemState {
	out := make([]models.ItemState, 0, len(items))
	for _, it := range items {
		out = append(out, models.ItemState{
			ID:        it.ID,
			X:         it.Position.X,
			Y:         it.Position.Y,
			Z:         it.Position.Z,
			Collected: it.Collected,
			IsBonus:   it.IsBonus,
			BonusType: it.BonusType,
		})
	}
	return out
}
