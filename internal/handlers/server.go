// Package handlers wires the wire protocol to the lobby core: the
// WebSocket read/write pumps, the action dispatcher, the disconnect
// reconciler and the HTTP mirrors of create/join/start/list.
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/zonezero/server/internal/events"
	"github.com/zonezero/server/internal/lobby"
)

// Server holds the shared state every handler needs.
type Server struct {
	Log      *logrus.Logger
	Registry *lobby.Registry
	Events   *events.Publisher
}

// NewServer builds a Server with a fresh registry. pub may be nil (events
// disabled).
func NewServer(log *logrus.Logger, pub *events.Publisher) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		Log:      log,
		Registry: lobby.NewRegistry(log),
		Events:   pub,
	}
}
