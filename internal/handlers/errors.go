package handlers

import (
	"errors"

	"github.com/zonezero/server/internal/lobby"
)

// wireError maps a core error to the user-visible string vocabulary the
// clients were written against.
func wireError(err error) string {
	switch {
	case errors.Is(err, lobby.ErrInvalidHandle):
		return "Invalid username"
	case errors.Is(err, lobby.ErrDuplicateLobby):
		return "A lobby with this name already exists."
	case errors.Is(err, lobby.ErrNotFound):
		return "Lobby not found"
	case errors.Is(err, lobby.ErrFull):
		return "The lobby is full"
	case errors.Is(err, lobby.ErrAlreadyMember):
		return "You are already in the lobby"
	case errors.Is(err, lobby.ErrAlreadyStarted):
		return "The game has already started"
	case errors.Is(err, lobby.ErrNotCreator):
		return "Only the creator can start the game"
	case errors.Is(err, lobby.ErrNotMember):
		return "You are not in the lobby"
	case errors.Is(err, lobby.ErrItemNotFound):
		return "Item not found"
	case errors.Is(err, lobby.ErrAlreadyCollected):
		return "Item already collected"
	case errors.Is(err, lobby.ErrNotBonus):
		return "Not a bonus item"
	case errors.Is(err, lobby.ErrEmptyMessage):
		return "Message cannot be empty"
	case errors.Is(err, lobby.ErrConnBound):
		return "You are already in a lobby"
	default:
		return "Internal server error"
	}
}
