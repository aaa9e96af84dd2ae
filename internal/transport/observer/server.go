package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MoniVibe/PureDOTS-sub002/internal/observerproto"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/spatial"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/world"
)

// Source is the read-only part of a world the server needs for bootstrap.
type Source interface {
	Config() world.WorldConfig
	RunID() string
	CurrentTick() uint64
	ResourceNames() []string
	ArchetypeNames() []string
}

type subscriber struct {
	id         string
	everyTicks uint64
	occupancy  bool
	out        chan []byte
}

// Server streams per-tick summaries to websocket observers. It implements
// world.Observer; Publish never blocks, slow observers lose messages.
type Server struct {
	src Source
	log *log.Logger

	upgrader    websocket.Upgrader
	allowRemote bool
	nextID      atomic.Uint64

	mu   sync.RWMutex
	subs map[string]*subscriber

	dropped atomic.Uint64
}

func NewServer(src Source, logger *log.Logger, allowRemote bool) *Server {
	return &Server{
		src:         src,
		log:         logger,
		allowRemote: allowRemote,
		subs:        map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Publish implements world.Observer.
func (s *Server) Publish(sum world.Summary) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subs) == 0 {
		return
	}
	var full, lean []byte
	for _, sub := range s.subs {
		if sub.everyTicks > 1 && sum.Tick%sub.everyTicks != 0 {
			continue
		}
		var b []byte
		if sub.occupancy {
			if full == nil {
				full = encodeTick(sum, true)
			}
			b = full
		} else {
			if lean == nil {
				lean = encodeTick(sum, false)
			}
			b = lean
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func encodeTick(sum world.Summary, occupancy bool) []byte {
	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		WorldID:         sum.WorldID,
		Tick:            sum.Tick,
		Mode:            sum.Mode,
		Version:         sum.Version,
		Strategy:        sum.Strategy,
		Villagers:       sum.Villagers,
		Resources:       sum.Resources,
		Counters:        sum.Counters,
		Level:           sum.Level,
		Reasons:         sum.Reasons,
		Digest:          sum.Digest,
	}
	if occupancy {
		msg.Occupancy = sum.Occupancy
	}
	b, _ := json.Marshal(msg)
	return b
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.src.Config()
		g := cfg.Tuning.Grid
		gc := spatial.NewConfig(
			spatial.Vec3{X: g.WorldMin[0], Y: g.WorldMin[1], Z: g.WorldMin[2]},
			spatial.Vec3{X: g.WorldMax[0], Y: g.WorldMax[1], Z: g.WorldMax[2]},
			g.CellSize,
		)
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			RunID:           s.src.RunID(),
			Tick:            s.src.CurrentTick(),
			TickRateHz:      cfg.Tuning.TickRateHz,
			Seed:            cfg.Seed,
			Grid: observerproto.GridParams{
				WorldMin:   g.WorldMin,
				WorldMax:   g.WorldMax,
				CellSize:   g.CellSize,
				CellCounts: gc.CellCounts,
				Provider:   g.Provider,
			},
			Resources:  s.src.ResourceNames(),
			Archetypes: s.src.ArchetypeNames(),
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out := make(chan []byte, 64)
		s.mu.Lock()
		s.subs[sid] = &subscriber{id: sid, everyTicks: uint64(sub.EveryTicks), occupancy: sub.Occupancy, out: out}
		s.mu.Unlock()
		if s.log != nil {
			s.log.Printf("observer %s connected from %s", sid, r.RemoteAddr)
		}
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			upd, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			s.mu.Lock()
			if cur, ok := s.subs[sid]; ok {
				cur.everyTicks = uint64(upd.EveryTicks)
				cur.occupancy = upd.Occupancy
			}
			s.mu.Unlock()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	if sub.EveryTicks < 1 {
		sub.EveryTicks = 1
	}
	if sub.EveryTicks > 1200 {
		sub.EveryTicks = 1200
	}
	return sub, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
