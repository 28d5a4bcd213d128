package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"fundtreasury/ledger"
)

const wsWriteTimeout = 10 * time.Second

// handleEvents streams committed operations over a websocket. The optional
// cursor query parameter is the last sequence the client has seen; recent
// commits past it are replayed before live updates.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var cursor uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(w, "invalid_cursor", "cursor must be a journal sequence")
			return
		}
		cursor = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamCommits(ctx, conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *server) streamCommits(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	updates, cancel, backlog := s.ledger.Subscribe(ctx, cursor)
	defer cancel()

	for _, commit := range backlog {
		if err := writeCommit(ctx, conn, commit); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case commit, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeCommit(ctx, conn, commit); err != nil {
				return err
			}
		}
	}
}

func writeCommit(ctx context.Context, conn *websocket.Conn, commit ledger.Commit) error {
	data, err := json.Marshal(commit)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
