package httpapi

import (
	"errors"
	"net/http"
	"time"

	"techcharades/internal/engine"
	"techcharades/internal/obslog"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const liveFeedInterval = 100 * time.Millisecond

// handleLiveFeed streams session snapshots over a websocket at the tick
// cadence. The feed ends with a final GAME_OVER snapshot, or when the
// client goes away.
func (s *Server) handleLiveFeed(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := s.games.Snapshot(r.Context(), sessionID); err != nil {
		writeEngineError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")

	ctx := r.Context()
	ticker := time.NewTicker(liveFeedInterval)
	defer ticker.Stop()

	for {
		snap, err := s.games.Snapshot(ctx, sessionID)
		if err != nil {
			conn.Close(websocket.StatusNormalClosure, "session gone")
			return
		}
		if err := wsjson.Write(ctx, conn, snap); err != nil {
			if !errors.Is(err, ctx.Err()) {
				obslog.L().Debug("ws_write_failed", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}
		if snap.State == engine.StateGameOver {
			conn.Close(websocket.StatusNormalClosure, "game over")
			return
		}

		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "client gone")
			return
		case <-ticker.C:
		}
	}
}
