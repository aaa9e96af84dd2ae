package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/MoniVibe/PureDOTS-sub002/internal/observerproto"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/tuning"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

type fakeSource struct{}

func (fakeSource) Config() world.WorldConfig {
	return world.WorldConfig{ID: "w1", Seed: 9, Tuning: tuning.Defaults()}
}
func (fakeSource) RunID() string            { return "run" }
func (fakeSource) CurrentTick() uint64      { return 12 }
func (fakeSource) ResourceNames() []string  { return []string{"food", "stone"} }
func (fakeSource) ArchetypeNames() []string { return []string{"gatherer"} }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, sub observerproto.SubscribeMsg) {
	t.Helper()
	sub.Type = "SUBSCRIBE"
	sub.ProtocolVersion = observerproto.Version
	b, err := json.Marshal(sub)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

func readTick(t *testing.T, conn *websocket.Conn) observerproto.TickMsg {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg observerproto.TickMsg
	require.NoError(t, json.Unmarshal(b, &msg))
	return msg
}

func TestServer_StreamsSummaries(t *testing.T) {
	s := NewServer(fakeSource{}, nil, false)
	mux := http.NewServeMux()
	mux.HandleFunc("/observer/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	subscribe(t, conn, observerproto.SubscribeMsg{EveryTicks: 2, Occupancy: true})
	require.Eventually(t, func() bool { return s.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Publish(world.Summary{WorldID: "w1", Tick: 3, Occupancy: "AAE="})
	s.Publish(world.Summary{WorldID: "w1", Tick: 4, Level: "ok", Occupancy: "AAE="})

	msg := readTick(t, conn)
	require.Equal(t, "TICK", msg.Type)
	require.EqualValues(t, 4, msg.Tick, "odd ticks are thinned out")
	require.Equal(t, "ok", msg.Level)
	require.Equal(t, "AAE=", msg.Occupancy)

	subscribe(t, conn, observerproto.SubscribeMsg{})
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, sub := range s.subs {
			return !sub.occupancy
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	s.Publish(world.Summary{WorldID: "w1", Tick: 5, Occupancy: "AAE="})
	msg = readTick(t, conn)
	require.EqualValues(t, 5, msg.Tick)
	require.Empty(t, msg.Occupancy)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_RejectsBadHandshake(t *testing.T) {
	s := NewServer(fakeSource{}, nil, false)
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	require.Zero(t, s.Subscribers())
}

func TestServer_Bootstrap(t *testing.T) {
	s := NewServer(fakeSource{}, nil, false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	s.BootstrapHandler()(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp observerproto.BootstrapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "w1", resp.WorldID)
	require.EqualValues(t, 12, resp.Tick)
	require.Equal(t, [3]int{32, 2, 32}, resp.Grid.CellCounts)
	require.Equal(t, []string{"food", "stone"}, resp.Resources)

	req.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	s.BootstrapHandler()(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_PublishWithoutSubscribersIsNoop(t *testing.T) {
	s := NewServer(fakeSource{}, nil, false)
	s.Publish(world.Summary{Tick: 1})
	require.Zero(t, s.Dropped())
}
