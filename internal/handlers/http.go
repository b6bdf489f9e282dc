package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/zonezero/server/internal/events"
	"github.com/zonezero/server/internal/lobby"
	"github.com/zonezero/server/internal/models"
)

// One-shot request/response mirrors of the create/join/start actions, for
// clients that set a lobby up over plain HTTP before opening the live
// channel. Validation, mutation and error vocabulary are shared with the
// dispatcher; like the live channel, failures travel in the body as
// {"error": ...} rather than as HTTP status codes.

// CreateLobbyHandler mirrors the "create" action.
func (s *Server) CreateLobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, models.ErrorPayload{Error: "Invalid JSON format"})
			return
		}

		l, err := s.Registry.Create(req.Username, nil)
		if err != nil {
			writeJSON(w, models.ErrorPayload{Error: wireError(err)})
			return
		}

		l.Mu.Lock()
		members := l.MembersUnsafe()
		status := l.Status
		l.Mu.Unlock()

		writeJSON(w, models.LobbyCreated{
			LobbyID: l.ID.String(),
			Creator: l.Creator,
			Players: members,
			Status:  string(status),
		})
		s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: "lobby_created", Actor: req.Username})
	}
}

// JoinLobbyHandler mirrors the "join" action; members already on the live
// channel get the same roster broadcast a live join would produce.
func (s *Server) JoinLobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.JoinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, models.ErrorPayload{Error: "Invalid JSON format"})
			return
		}

		l, err := s.Registry.Join(req.Creator, req.Username, nil)
		if err != nil {
			writeJSON(w, models.ErrorPayload{Error: wireError(err)})
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
		writeJSON(w, models.LobbyJoined{
			LobbyID: l.ID.String(),
			Creator: l.Creator,
			Players: members,
		})
		s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: "player_joined", Actor: req.Username})
	}
}

// StartGameHandler mirrors the "start" action.
func (s *Server) StartGameHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, models.ErrorPayload{Error: "Invalid JSON format"})
			return
		}

		id, err := uuid.Parse(req.LobbyID)
		if err != nil {
			writeJSON(w, models.ErrorPayload{Error: wireError(lobby.ErrNotFound)})
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
			writeJSON(w, models.ErrorPayload{Error: wireError(err)})
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
		writeJSON(w, models.Ack{Message: "The game has started"})
		s.Events.Publish(events.Record{LobbyID: l.ID.String(), Action: "game_started", Actor: req.Username, Payload: map[string]any{"seed": seed}})
	}
}

// ListLobbiesHandler returns every lobby still waiting for players.
func (s *Server) ListLobbiesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, lobbyList(s.Registry))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
