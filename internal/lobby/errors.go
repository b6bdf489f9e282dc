package lobby

import "errors"

// Sentinel errors for every recoverable protocol failure. Handlers match
// them with errors.Is and translate to the wire vocabulary; none of them
// terminates a connection or mutates shared state.
var (
	ErrInvalidHandle    = errors.New("invalid handle")
	ErrDuplicateLobby   = errors.New("lobby already exists for this creator")
	ErrNotFound         = errors.New("lobby not found")
	ErrFull             = errors.New("lobby is full")
	ErrAlreadyMember    = errors.New("already a member of this lobby")
	ErrAlreadyStarted   = errors.New("game already started")
	ErrNotCreator       = errors.New("only the creator may do this")
	ErrNotMember        = errors.New("not a member of this lobby")
	ErrItemNotFound     = errors.New("item not found")
	ErrAlreadyCollected = errors.New("item already collected")
	ErrNotBonus         = errors.New("item is not a bonus")
	ErrEmptyMessage     = errors.New("empty chat message")
	ErrConnBound        = errors.New("connection already bound to a lobby")
)
