package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/cryguy/titan/internal/core"
)

const wsWriteTimeout = 10 * time.Second

// wsReply is one result frame. Seq numbers incoming messages from 1, so
// clients can match out-of-order completions. Worker is absent only when the
// submission never reached a worker.
type wsReply struct {
	Seq    uint64 `json:"seq"`
	Worker *int   `json:"worker,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleWebSocket submits every incoming message as one invocation of the
// route's action and writes results back as they complete.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.V(1).Info("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(s.maxBody)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		wg  sync.WaitGroup
		seq uint64
	)
	defer wg.Wait()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				s.log.V(1).Info("websocket closed", "action", action, "error", err)
			}
			// Let in-flight results drain before closing.
			wg.Wait()
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		seq++

		inv := core.Invocation{
			Action:  action,
			Method:  http.MethodGet,
			Path:    r.URL.Path,
			Body:    data,
			Headers: core.NewHeaders(),
			Params:  core.NewParams(),
			Query:   core.NewQuery(),
		}
		inv.Params.Add("action", action)

		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			reply := wsReply{Seq: n}
			res, err := s.pool.Submit(ctx, inv)
			switch {
			case err != nil:
				reply.Error = err.Error()
			default:
				worker := res.Worker
				reply.Worker = &worker
				if msg, isErr := res.IsError(); isErr {
					reply.Error = msg
				} else {
					reply.Result = res.Value
				}
			}
			s.writeFrame(ctx, conn, reply)
		}(seq)
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, reply wsReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		data, _ = json.Marshal(wsReply{Seq: reply.Seq, Error: "encoding result: " + err.Error()})
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		s.log.V(1).Info("websocket write failed", "seq", reply.Seq, "error", err)
	}
}
