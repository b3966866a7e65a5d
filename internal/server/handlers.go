package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cryguy/titan/internal/core"
	"github.com/cryguy/titan/internal/journal"
)

// minCompressBytes is the smallest response body worth compressing.
const minCompressBytes = 512

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v, brotli-compressing it when the client accepts br.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorBody{Error: "encoding response: " + err.Error()})
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Add("Vary", "Accept-Encoding")
	if len(data) < minCompressBytes || !acceptsBrotli(r) {
		h.Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(status)
		_, _ = w.Write(data)
		return
	}

	h.Set("Content-Encoding", "br")
	w.WriteHeader(status)
	bw := brotli.NewWriter(w)
	_, _ = bw.Write(data)
	_ = bw.Close()
}

func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, q, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.TrimSpace(enc) != "br" {
			continue
		}
		q = strings.TrimSpace(q)
		return q != "q=0" && q != "q=0.0"
	}
	return false
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorBody{Error: msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.pool.Stats()
	status := http.StatusOK
	body := map[string]any{"status": "ok", "live": st.Live}
	if st.Live == 0 {
		status = http.StatusServiceUnavailable
		body["status"] = "no live workers"
	}
	writeJSON(w, r, status, body)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.pool.Stats())
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error(err, "reading journal")
		writeError(w, r, http.StatusInternalServerError, "reading journal")
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// statusFor maps a Submit failure to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrDispatchUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrExecutionChannelClosed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		// Client went away; nobody reads the status.
		return 499
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	inv, err := s.invocation(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "reading request body")
		return
	}

	res, err := s.pool.Submit(r.Context(), inv)
	if err != nil {
		status := statusFor(err)
		// The row is written before the response so clients that saw it can
		// find it in /journal.
		s.record(r, inv, status, err.Error(), time.Since(start))
		if status == 499 {
			s.log.V(1).Info("client gone before result", "action", inv.Action, "error", err)
			return
		}
		writeError(w, r, status, err.Error())
		return
	}

	status, msg := http.StatusOK, ""
	if m, isErr := res.IsError(); isErr {
		status, msg = http.StatusInternalServerError, m
	}
	s.record(r, inv, status, msg, time.Since(start))
	w.Header().Set("X-Titan-Worker", strconv.Itoa(res.Worker))
	writeJSON(w, r, status, res.Value)
}

// invocation builds the pool submission for r. Header and query maps are
// flattened in sorted key order; values keep their wire order.
func (s *Server) invocation(w http.ResponseWriter, r *http.Request) (core.Invocation, error) {
	inv := core.Invocation{
		Action:  chi.URLParam(r, "action"),
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: core.NewHeaders(),
		Params:  core.NewParams(),
		Query:   core.NewQuery(),
	}

	for _, k := range sortedKeys(r.Header) {
		for _, v := range r.Header[k] {
			inv.Headers.Add(k, v)
		}
	}
	inv.Params.Add("action", inv.Action)
	if rest := chi.URLParam(r, "*"); rest != "" {
		inv.Params.Add("*", rest)
	}
	q := r.URL.Query()
	for _, k := range sortedKeys(q) {
		for _, v := range q[k] {
			inv.Query.Add(k, v)
		}
	}

	// GET and HEAD without a body leave inv.Body nil; other methods always
	// carry one, possibly empty.
	if hasBody(r) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
		if err != nil {
			return inv, err
		}
		inv.Body = data
	}
	return inv, nil
}

func hasBody(r *http.Request) bool {
	if r.Body == nil {
		return false
	}
	if r.Body != http.NoBody {
		return true
	}
	return r.Method != http.MethodGet && r.Method != http.MethodHead
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) record(r *http.Request, inv core.Invocation, status int, msg string, d time.Duration) {
	if s.journal == nil {
		return
	}
	e := journal.Entry{
		RequestID: middleware.GetReqID(r.Context()),
		Action:    inv.Action,
		Method:    inv.Method,
		Path:      inv.Path,
		Status:    status,
		Duration:  d,
		Error:     msg,
	}
	if err := s.journal.Record(context.WithoutCancel(r.Context()), e); err != nil {
		s.log.Error(err, "recording execution", "action", inv.Action)
	}
}
