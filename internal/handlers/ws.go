package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zonezero/server/internal/lobby"
	"github.com/zonezero/server/internal/models"
)

// LobbyWSHandler accepts the live lobby channel. A connection is anonymous
// until its first successful create or join; everything else is driven by
// the action dispatcher.
func (s *Server) LobbyWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Log.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")
		s.Log.WithFields(logrus.Fields{"remote": r.RemoteAddr}).Info("lobby channel open")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := lobby.NewConn()
		go s.writePump(ctx, c, conn)

		readErr := s.readPump(ctx, c, conn)

		// Transport is gone (or the handler is being torn down); the
		// reconciler derives all lobby cleanup from the dead connection.
		conn.Close()
		s.reconcileDisconnect(conn)

		fields := logrus.Fields{"remote": r.RemoteAddr}
		if handle := conn.Handle(); handle != "" {
			fields["player"] = handle
		}
		if readErr != nil {
			fields["error"] = readErr
		}
		s.Log.WithFields(fields).Info("lobby channel closed")
	}
}

// readPump consumes frames until the transport fails or the connection is
// closed. Returns the terminal read error, nil for a normal closure.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, conn *lobby.Conn) error {
	for {
		select {
		case <-conn.Done():
			return nil
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			s.Log.Warnf("ignoring non-text frame type %d", typ)
			continue
		}
		s.dispatchSafe(msg, conn)
	}
}

// dispatchSafe isolates one frame's handling: an unexpected panic is
// reported to the sender as a generic internal error and the connection is
// closed rather than left in an unknown state.
func (s *Server) dispatchSafe(raw []byte, conn *lobby.Conn) {
	defer func() {
		if rec := recover(); rec != nil {
			s.Log.Errorf("panic while handling frame: %v", rec)
			conn.Send(models.ErrorPayload{Error: "Internal server error"})
			conn.Close()
		}
	}()
	s.Dispatch(raw, conn)
}

// writePump drains the connection's outbound queue onto the socket, pinging
// periodically so dead transports are detected even when idle. When the
// connection is closed it flushes whatever is still queued (closure notices
// in particular) before shutting the socket.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, conn *lobby.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.Close(websocket.StatusGoingAway, "write pump stopping")

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			for {
				select {
				case msg := <-conn.Out():
					if err := writeFrame(context.Background(), c, msg); err != nil {
						return
					}
				default:
					return
				}
			}
		case msg := <-conn.Out():
			if err := writeFrame(ctx, c, msg); err != nil {
				s.Log.Warnf("websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				s.Log.Warnf("websocket ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, c *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}

// reconcileDisconnect applies the disconnect policy: detach the dead
// connection, destroy the lobby when it emptied or its creator left
// (notifying survivors), otherwise drop the departed member and
// re-broadcast the roster.
func (s *Server) reconcileDisconnect(conn *lobby.Conn) {
	out, ok := s.Registry.ReconcileDisconnect(conn)
	if !ok {
		return
	}
	l := out.Lobby

	if out.Destroyed {
		s.closeSurvivors(l, out.Survivors)
		return
	}
	if out.Removed != "" {
		s.Registry.Broadcast(l, models.LobbyUpdate{
			Action:  "lobby_update",
			LobbyID: l.ID.String(),
			Players: out.Members,
			Status:  string(out.Status),
		}, nil)
	}
}
