package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fernvale/server/internal/world"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
}

// snapshotMsg is one websocket frame: the full NPC state of a map.
type snapshotMsg struct {
	Type    string           `json:"type"`
	MapName string           `json:"map"`
	At      time.Time        `json:"at"`
	Npcs    []world.NpcState `json:"npcs"`
}

// handleStream upgrades the connection and pushes a map snapshot every
// stream period until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	mapName := r.PathValue("map")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine: we never expect frames, but reading is what
	// surfaces the close handshake.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	period := s.StreamPeriod
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		npcs, err := s.Engine.ListNpcsOnMap(ctx, mapName)
		if err != nil {
			s.Log.Warn("stream: list npcs failed", zap.String("map", mapName), zap.Error(err))
			return
		}
		if npcs == nil {
			npcs = []world.NpcState{}
		}
		msg := snapshotMsg{Type: "snapshot", MapName: mapName, At: time.Now(), Npcs: npcs}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
