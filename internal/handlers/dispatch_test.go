package handlers

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonezero/server/internal/lobby"
	"github.com/zonezero/server/internal/models"
)

func newTestServer() *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(log, nil)
}

// recv pops the next queued frame for a connection. Dispatch is synchronous
// and sends are buffered, so anything owed is already in the queue.
func recv(t *testing.T, c *lobby.Conn) any {
	t.Helper()
	select {
	case msg := <-c.Out():
		return msg
	default:
		t.Fatal("expected a queued message, got none")
		return nil
	}
}

func recvNone(t *testing.T, c *lobby.Conn) {
	t.Helper()
	select {
	case msg := <-c.Out():
		t.Fatalf("expected no message, got %#v", msg)
	default:
	}
}

func recvError(t *testing.T, c *lobby.Conn) string {
	t.Helper()
	msg := recv(t, c)
	e, ok := msg.(models.ErrorPayload)
	require.Truef(t, ok, "expected error payload, got %#v", msg)
	return e.Error
}

func createLobby(t *testing.T, s *Server, conn *lobby.Conn, handle string) models.LobbyCreated {
	t.Helper()
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"create","username":%q}`, handle)), conn)
	msg := recv(t, conn)
	created, ok := msg.(models.LobbyCreated)
	require.Truef(t, ok, "expected LobbyCreated, got %#v", msg)
	return created
}

func joinLobby(t *testing.T, s *Server, conn *lobby.Conn, creator, handle string) {
	t.Helper()
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"join","creator":%q,"username":%q}`, creator, handle)), conn)
}

func TestDispatchCreate(t *testing.T) {
	s := newTestServer()
	conn := lobby.NewConn()

	created := createLobby(t, s, conn, "@Alice")
	assert.Equal(t, "@Alice", created.Creator)
	assert.Equal(t, []string{"@Alice"}, created.Players)
	assert.Equal(t, "waiting", created.Status)
	assert.NotEmpty(t, created.LobbyID)
	assert.Equal(t, "@Alice", conn.Handle())
}

func TestDispatchCreateInvalidAndDuplicate(t *testing.T) {
	s := newTestServer()
	conn := lobby.NewConn()

	s.Dispatch([]byte(`{"action":"create","username":"Alice"}`), conn)
	assert.Equal(t, "Invalid username", recvError(t, conn))

	createLobby(t, s, conn, "@Alice")

	other := lobby.NewConn()
	s.Dispatch([]byte(`{"action":"create","username":"@Alice"}`), other)
	assert.Equal(t, "A lobby with this name already exists.", recvError(t, other))
}

func TestDispatchJoinBroadcastThenAck(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()

	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")

	// Room broadcast first (both members), then the joiner's reply.
	update, ok := recv(t, alice).(models.LobbyUpdate)
	require.True(t, ok)
	assert.Equal(t, []string{"@Alice", "@Bob"}, update.Players)
	assert.Equal(t, "waiting", update.Status)
	assert.Equal(t, created.LobbyID, update.LobbyID)

	bupdate, ok := recv(t, bob).(models.LobbyUpdate)
	require.True(t, ok)
	assert.Equal(t, update, bupdate)

	joined, ok := recv(t, bob).(models.LobbyJoined)
	require.True(t, ok)
	assert.Equal(t, "@Alice", joined.Creator)
	assert.Equal(t, []string{"@Alice", "@Bob"}, joined.Players)
}

func TestDispatchJoinFull(t *testing.T) {
	s := newTestServer()
	alice := lobby.NewConn()
	createLobby(t, s, alice, "@Alice")

	for _, h := range []string{"@Bob", "@Carol", "@Dave"} {
		c := lobby.NewConn()
		joinLobby(t, s, c, "@Alice", h)
	}

	eve := lobby.NewConn()
	joinLobby(t, s, eve, "@Alice", "@Eve")
	assert.Equal(t, "The lobby is full", recvError(t, eve))
}

func TestDispatchStart(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice) // roster update
	recv(t, bob)
	recv(t, bob)

	// Only the creator may start.
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"start","lobby_id":%q,"username":"@Bob","seed":1}`, created.LobbyID)), bob)
	assert.Equal(t, "Only the creator can start the game", recvError(t, bob))

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"start","lobby_id":%q,"username":"@Alice","seed":1234}`, created.LobbyID)), alice)

	started, ok := recv(t, alice).(models.GameStarted)
	require.True(t, ok)
	assert.Equal(t, "started", started.Status)
	assert.Equal(t, int64(1234), started.Seed)
	assert.Equal(t, []string{"@Alice", "@Bob"}, started.Players)

	_, ok = recv(t, bob).(models.GameStarted)
	assert.True(t, ok)

	ack, ok := recv(t, alice).(models.Ack)
	require.True(t, ok)
	assert.Equal(t, "The game has started", ack.Message)

	// Late joiner is rejected once started.
	late := lobby.NewConn()
	joinLobby(t, s, late, "@Alice", "@Late")
	assert.Equal(t, "The game has already started", recvError(t, late))
}

func TestDispatchReadyAllReady(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"ready","lobby_id":%q,"username":"@Alice"}`, created.LobbyID)), alice)
	recvNone(t, alice) // not everyone ready yet, and ready itself has no reply
	recvNone(t, bob)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"ready","lobby_id":%q,"username":"@Bob"}`, created.LobbyID)), bob)

	ready, ok := recv(t, alice).(models.AllReady)
	require.True(t, ok)
	assert.Equal(t, "all_ready", ready.Action)
	_, ok = recv(t, bob).(models.AllReady)
	assert.True(t, ok)
}

func TestDispatchReadyNotMember(t *testing.T) {
	s := newTestServer()
	alice := lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")

	stranger := lobby.NewConn()
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"ready","lobby_id":%q,"username":"@Ghost"}`, created.LobbyID)), stranger)
	assert.Equal(t, "You are not in the lobby", recvError(t, stranger))
}

func TestDispatchUpdatePositionExcludesSender(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"update_position","lobby_id":%q,"username":"@Bob","x":1,"y":"2.5","z":3}`, created.LobbyID)), bob)

	pos, ok := recv(t, alice).(models.PositionUpdate)
	require.True(t, ok)
	assert.Equal(t, "@Bob", pos.Username)
	assert.Equal(t, 1.0, pos.X)
	assert.Equal(t, 2.5, pos.Y)
	assert.Equal(t, 3.0, pos.Z)
	recvNone(t, bob)
}

func TestDispatchUpdatePositionRejectsNonNumeric(t *testing.T) {
	s := newTestServer()
	alice := lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"update_position","lobby_id":%q,"username":"@Alice","x":"north","y":0,"z":0}`, created.LobbyID)), alice)
	assert.Equal(t, "Invalid position data", recvError(t, alice))
}

func registerItems(t *testing.T, s *Server, conn *lobby.Conn, lobbyID string) {
	t.Helper()
	s.Dispatch([]byte(fmt.Sprintf(
		`{"action":"register_items","lobby_id":%q,"items":[`+
			`{"id":"item1","x":1,"y":0,"z":0},`+
			`{"id":"item2","x":2,"y":0,"z":0},`+
			`{"id":"boost1","x":3,"y":0,"z":0,"is_bonus":true,"bonus_type":"speed_boost"},`+
			`{"id":"mystery","x":4,"y":0,"z":0,"is_bonus":true,"bonus_type":"teleport"}]}`, lobbyID)), conn)
}

func TestDispatchCollectItemScoring(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)

	registerItems(t, s, alice, created.LobbyID)
	reg, ok := recv(t, alice).(models.ItemsRegistered)
	require.True(t, ok)
	assert.Equal(t, 4, reg.Count)
	recv(t, bob)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"collect_item","lobby_id":%q,"username":"@Bob","item_id":"item1"}`, created.LobbyID)), bob)

	got, ok := recv(t, bob).(models.ItemCollected)
	require.True(t, ok)
	assert.Equal(t, "item1", got.ItemID)
	assert.Equal(t, "@Bob", got.Username)
	assert.Equal(t, map[string]int{"@Alice": 0, "@Bob": 1}, got.Scores)
	_, ok = recv(t, alice).(models.ItemCollected)
	assert.True(t, ok)

	// Second collection of the same item fails and does not double count.
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"collect_item","lobby_id":%q,"username":"@Bob","item_id":"item1"}`, created.LobbyID)), bob)
	assert.Equal(t, "Item already collected", recvError(t, bob))
	recvNone(t, alice)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"collect_item","lobby_id":%q,"username":"@Bob","item_id":"nope"}`, created.LobbyID)), bob)
	assert.Equal(t, "Item not found", recvError(t, bob))
}

func TestDispatchCollectBonusEffects(t *testing.T) {
	s := newTestServer()
	alice, bob, carol := lobby.NewConn(), lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)
	joinLobby(t, s, carol, "@Alice", "@Carol")
	recv(t, alice)
	recv(t, bob)
	recv(t, carol)
	recv(t, carol)

	registerItems(t, s, alice, created.LobbyID)
	recv(t, alice)
	recv(t, bob)
	recv(t, carol)

	// Plain collect on a bonus-only action is rejected by kind.
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"collect_bonus","lobby_id":%q,"username":"@Bob","item_id":"item2"}`, created.LobbyID)), bob)
	assert.Equal(t, "Not a bonus item", recvError(t, bob))

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"collect_bonus","lobby_id":%q,"username":"@Bob","item_id":"boost1"}`, created.LobbyID)), bob)

	// Everyone sees the collection notice; no score changed.
	notice, ok := recv(t, bob).(models.ItemCollected)
	require.True(t, ok)
	assert.Equal(t, 0, notice.Scores["@Bob"])
	_, ok = recv(t, alice).(models.ItemCollected)
	require.True(t, ok)
	_, ok = recv(t, carol).(models.ItemCollected)
	require.True(t, ok)

	// The effect lands on the other members only.
	effA, ok := recv(t, alice).(models.ApplyEffect)
	require.True(t, ok)
	assert.Equal(t, "@Alice", effA.Target)
	assert.Equal(t, "speed_boost", effA.Effect)
	assert.Equal(t, 5.0, effA.Duration)
	require.NotNil(t, effA.Multiplier)
	assert.Equal(t, 1.5, *effA.Multiplier)

	effC, ok := recv(t, carol).(models.ApplyEffect)
	require.True(t, ok)
	assert.Equal(t, "@Carol", effC.Target)
	recvNone(t, bob)
}

func TestDispatchCollectBonusDefaultsUnknownType(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)

	registerItems(t, s, alice, created.LobbyID)
	recv(t, alice)
	recv(t, bob)

	// "teleport" has no configured duration or multiplier.
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"collect_bonus","lobby_id":%q,"username":"@Bob","item_id":"mystery"}`, created.LobbyID)), bob)
	recv(t, bob)   // collection notice
	recv(t, alice) // collection notice

	eff, ok := recv(t, alice).(models.ApplyEffect)
	require.True(t, ok)
	assert.Equal(t, "teleport", eff.Effect)
	assert.Equal(t, lobby.DefaultEffectDuration, eff.Duration)
	assert.Nil(t, eff.Multiplier)
}

func TestDispatchSetBonusData(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"set_bonus_data","lobby_id":%q,"username":"@Alice","bonus_data":{"durations":{"speed_boost":9},"multipliers":{"speed_boost":2}}}`, created.LobbyID)), alice)
	ack, ok := recv(t, alice).(models.Ack)
	require.True(t, ok)
	assert.Equal(t, "Bonus data updated", ack.Message)

	registerItems(t, s, alice, created.LobbyID)
	recv(t, alice)
	recv(t, bob)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"collect_bonus","lobby_id":%q,"username":"@Bob","item_id":"boost1"}`, created.LobbyID)), bob)
	recv(t, bob)
	recv(t, alice)

	eff, ok := recv(t, alice).(models.ApplyEffect)
	require.True(t, ok)
	assert.Equal(t, 9.0, eff.Duration)
	require.NotNil(t, eff.Multiplier)
	assert.Equal(t, 2.0, *eff.Multiplier)
}

func TestDispatchChat(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"send_message","lobby_id":%q,"username":"@Bob","message":"   "}`, created.LobbyID)), bob)
	assert.Equal(t, "Message cannot be empty", recvError(t, bob))

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"send_message","lobby_id":%q,"username":"@Bob","message":"gl hf"}`, created.LobbyID)), bob)

	chat, ok := recv(t, alice).(models.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "@Bob", chat.Username)
	assert.Equal(t, "gl hf", chat.Message)
	_, ok = recv(t, bob).(models.ChatMessage)
	assert.True(t, ok)
}

func TestDispatchLeaveNonCreator(t *testing.T) {
	s := newTestServer()
	alice, bob, carol := lobby.NewConn(), lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)
	joinLobby(t, s, carol, "@Alice", "@Carol")
	recv(t, alice)
	recv(t, bob)
	recv(t, carol)
	recv(t, carol)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"leave","lobby_id":%q,"username":"@Bob"}`, created.LobbyID)), bob)

	update, ok := recv(t, alice).(models.LobbyUpdate)
	require.True(t, ok)
	assert.Equal(t, []string{"@Alice", "@Carol"}, update.Players)
	_, ok = recv(t, carol).(models.LobbyUpdate)
	assert.True(t, ok)

	ack, ok := recv(t, bob).(models.Ack)
	require.True(t, ok)
	assert.Equal(t, "You left the lobby", ack.Message)

	// Bob's connection is free to start over.
	assert.Equal(t, "", bob.Handle())
}

func TestDispatchLeaveCreatorDestroysLobby(t *testing.T) {
	s := newTestServer()
	alice, bob, carol := lobby.NewConn(), lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)
	joinLobby(t, s, carol, "@Alice", "@Carol")
	recv(t, alice)
	recv(t, bob)
	recv(t, carol)
	recv(t, carol)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"leave","lobby_id":%q,"username":"@Alice"}`, created.LobbyID)), alice)

	closedB, ok := recv(t, bob).(models.LobbyClosed)
	require.True(t, ok)
	assert.Equal(t, "lobby_closed", closedB.Action)
	assert.Equal(t, created.LobbyID, closedB.LobbyID)
	_, ok = recv(t, carol).(models.LobbyClosed)
	assert.True(t, ok)

	ack, ok := recv(t, alice).(models.Ack)
	require.True(t, ok)
	assert.Equal(t, "Lobby closed", ack.Message)

	// Survivor connections are shut down and the lobby is gone.
	assert.False(t, bob.Send("late"))
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"ready","lobby_id":%q,"username":"@Bob"}`, created.LobbyID)), alice)
	assert.Equal(t, "Lobby not found", recvError(t, alice))
}

func TestDispatchLeaveRejectsMismatchedLobby(t *testing.T) {
	s := newTestServer()
	alice, bob, carol := lobby.NewConn(), lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)
	carolCreated := createLobby(t, s, carol, "@Carol")

	// Carol names Alice's lobby: rejected without detaching her from her
	// own lobby or touching Alice's roster.
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"leave","lobby_id":%q,"username":"@Alice"}`, created.LobbyID)), carol)
	assert.Equal(t, "You are not in the lobby", recvError(t, carol))
	recvNone(t, alice)
	recvNone(t, bob)
	assert.Equal(t, "@Carol", carol.Handle())

	// Her own lobby still answers her.
	s.Dispatch([]byte(fmt.Sprintf(`{"action":"leave","lobby_id":%q,"username":"@Carol"}`, carolCreated.LobbyID)), carol)
	ack, ok := recv(t, carol).(models.Ack)
	require.True(t, ok)
	assert.Equal(t, "Lobby closed", ack.Message)
}

func TestDispatchLeaveUnknownMember(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"leave","lobby_id":%q,"username":"@Ghost"}`, created.LobbyID)), bob)
	assert.Equal(t, "You are not in the lobby", recvError(t, bob))
	recvNone(t, alice)

	// Bob stays bound; a failed leave must not strand the connection.
	assert.Equal(t, "@Bob", bob.Handle())
}

func TestDispatchGetLobbies(t *testing.T) {
	s := newTestServer()
	alice, carol := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	carolCreated := createLobby(t, s, carol, "@Carol")

	s.Dispatch([]byte(fmt.Sprintf(`{"action":"start","lobby_id":%q,"username":"@Carol","seed":1}`, carolCreated.LobbyID)), carol)
	recv(t, carol) // game_started broadcast
	recv(t, carol) // ack

	watcher := lobby.NewConn()
	s.Dispatch([]byte(`{"action":"get_lobbies"}`), watcher)

	list, ok := recv(t, watcher).(models.LobbyList)
	require.True(t, ok)
	require.Len(t, list.Lobbies, 1)
	assert.Equal(t, created.LobbyID, list.Lobbies[0].LobbyID)
	assert.Equal(t, "@Alice", list.Lobbies[0].Creator)
	assert.Equal(t, 1, list.Lobbies[0].Players)
	assert.Equal(t, 4, list.Lobbies[0].MaxPlayers)
}

func TestDispatchPingAndUnknown(t *testing.T) {
	s := newTestServer()
	conn := lobby.NewConn()

	s.Dispatch([]byte(`{"action":"ping"}`), conn)
	pong, ok := recv(t, conn).(models.Pong)
	require.True(t, ok)
	assert.Equal(t, "pong", pong.Action)

	s.Dispatch([]byte(`{"action":"warp"}`), conn)
	assert.Equal(t, "Unknown action: warp", recvError(t, conn))

	s.Dispatch([]byte(`{not json`), conn)
	assert.Equal(t, "Invalid JSON format", recvError(t, conn))
}

func TestReconcileDisconnectBroadcastsRoster(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)

	bob.Close()
	s.reconcileDisconnect(bob)

	update, ok := recv(t, alice).(models.LobbyUpdate)
	require.True(t, ok)
	assert.Equal(t, []string{"@Alice"}, update.Players)
}

func TestReconcileDisconnectCreatorClosesLobby(t *testing.T) {
	s := newTestServer()
	alice, bob := lobby.NewConn(), lobby.NewConn()
	created := createLobby(t, s, alice, "@Alice")
	joinLobby(t, s, bob, "@Alice", "@Bob")
	recv(t, alice)
	recv(t, bob)
	recv(t, bob)

	alice.Close()
	s.reconcileDisconnect(alice)

	closed, ok := recv(t, bob).(models.LobbyClosed)
	require.True(t, ok)
	assert.Equal(t, created.LobbyID, closed.LobbyID)
}
