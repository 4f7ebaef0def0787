package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"synthledger/core/types"
	"synthledger/integrations/eventlog"
)

const wsWriteTimeout = 10 * time.Second

func (s *Server) mountEvents(r chi.Router) {
	r.Get("/", s.listEvents)
	r.Get("/ws", s.streamEvents)
}

type eventsView struct {
	Events []*types.Event `json:"events"`
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "event archive disabled")
		return
	}
	q := r.URL.Query()
	after, err := parseUint("after", q.Get("after"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeError(w, badRequest("limit: must be a non-negative integer"))
			return
		}
	}
	evts, err := s.archive.List(r.Context(), eventlog.Query{
		Type:          q.Get("type"),
		PoolID:        q.Get("poolId"),
		AccountID:     q.Get("accountId"),
		MarketID:      q.Get("marketId"),
		AfterSequence: after,
		Limit:         limit,
	})
	if err != nil {
		s.logger.Error("list archived events", "error", err)
		writeError(w, err)
		return
	}
	if evts == nil {
		evts = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, eventsView{Events: evts})
}

// streamEvents pushes committed ledger events to a websocket client. An
// optional type query parameter filters the stream.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "event stream disabled")
		return
	}
	filter := r.URL.Query().Get("type")
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	s.metrics.AddSubscribers(1)
	defer s.metrics.AddSubscribers(-1)

	// the client never sends; CloseRead surfaces its close frame as ctx cancellation
	ctx := conn.CloseRead(r.Context())
	if err := s.pumpEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) pumpEvents(ctx context.Context, conn *websocket.Conn, filter string) error {
	updates, cancel := s.broker.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if filter != "" && evt.Type != filter {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
