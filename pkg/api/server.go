package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conuredb/bpt/db"
	"github.com/conuredb/bpt/pkg/logger"
	"github.com/conuredb/bpt/pkg/raftnode"
)

// Cluster is the replication surface the API needs. *raftnode.Node
// implements it.
type Cluster interface {
	IsLeader() bool
	Leader() string
	State() string
	Apply(cmd raftnode.Command, timeout time.Duration) error
	Barrier(timeout time.Duration) error
	AddVoter(id, addr string) error
}

// Store serves reads from the local replica.
type Store interface {
	Get(key []byte) ([]byte, error)
	Stats() (db.Stats, error)
}

type Server struct {
	node           Cluster
	store          Store
	log            logger.Logger
	BarrierTimeout time.Duration
	ApplyTimeout   time.Duration
}

func New(node Cluster, store Store, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard{}
	}
	return &Server{
		node:           node,
		store:          store,
		log:            log,
		BarrierTimeout: 3 * time.Second,
		ApplyTimeout:   5 * time.Second,
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/kv", s.handleKV)
	mux.HandleFunc("/join", s.handleJoin)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/stats", s.handleStats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func (s *Server) redirectToLeader(w http.ResponseWriter) {
	writeJSON(w, http.StatusConflict, map[string]string{"leader": s.node.Leader()})
}

// statusFor maps database errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrKeyExists):
		return http.StatusConflict
	case errors.Is(err, db.ErrKeyEmpty), errors.Is(err, db.ErrKeyInvalid),
		errors.Is(err, db.ErrKeyTooLarge), errors.Is(err, db.ErrValueTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"is_leader": s.node.IsLeader(),
		"leader":    s.node.Leader(),
		"state":     s.node.State(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	type req struct{ ID, RaftAddr string }
	var body req
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.node.IsLeader() {
		s.redirectToLeader(w)
		return
	}
	if err := s.node.AddVoter(body.ID, body.RaftAddr); err != nil {
		s.log.Error("add voter failed", "id", body.ID, "addr", body.RaftAddr, "error", err)
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("voter added", "id", body.ID, "addr", body.RaftAddr)
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleKV(w http.ResponseWriter, r *http.Request) {
	key := []byte(r.URL.Query().Get("key"))
	if len(key) == 0 {
		writeText(w, http.StatusBadRequest, "missing key")
		return
	}

	switch r.Method {
	case http.MethodGet:
		stale := strings.EqualFold(r.URL.Query().Get("stale"), "true") || r.URL.Query().Get("stale") == "1"
		if s.node.IsLeader() {
			// linearizable read via barrier
			if err := s.node.Barrier(s.BarrierTimeout); err != nil {
				writeText(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		} else if !stale {
			s.redirectToLeader(w)
			return
		}
		val, err := s.store.Get(key)
		if err != nil {
			writeText(w, statusFor(err), err.Error())
			return
		}
		writeText(w, http.StatusOK, string(val))

	case http.MethodPost:
		s.write(w, r, raftnode.CmdInsert, key, true)
	case http.MethodPut:
		s.write(w, r, raftnode.CmdPut, key, true)
	case http.MethodDelete:
		s.write(w, r, raftnode.CmdDelete, key, false)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, typ raftnode.CommandType, key []byte, withValue bool) {
	if !s.node.IsLeader() {
		s.redirectToLeader(w)
		return
	}
	cmd := raftnode.Command{Type: typ, Key: key}
	if withValue {
		value, err := io.ReadAll(r.Body)
		if err != nil {
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}
		cmd.Value = value
	}
	if err := s.node.Apply(cmd, s.ApplyTimeout); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.log.Error("apply failed", "command", typ.String(), "error", err)
		}
		writeText(w, status, err.Error())
		return
	}
	status := http.StatusOK
	if typ == raftnode.CmdInsert {
		status = http.StatusCreated
	}
	writeText(w, status, "OK")
}
