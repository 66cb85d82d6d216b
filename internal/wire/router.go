package wire

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dreamware/tpckv/internal/kvmessage"
	"github.com/dreamware/tpckv/internal/leader"
)

// FollowerHandler is the subset of internal/follower.Follower the router
// needs; a single synchronous call per HTTP request, matching the
// single-writer discipline the follower already enforces internally.
type FollowerHandler interface {
	Handle(req kvmessage.Request) kvmessage.Response
}

// NewFollowerRouter builds the HTTP surface a follower process exposes:
// GET/PUT/DELETE for client and leader key traffic, POST /commit and
// POST /abort for the leader's Phase 2 decision.
func NewFollowerRouter(h FollowerHandler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", followerKeyHandler(h, kvmessage.GetReq)).Methods(http.MethodGet)
	r.HandleFunc("/", followerKeyHandler(h, kvmessage.PutReq)).Methods(http.MethodPut)
	r.HandleFunc("/", followerKeyHandler(h, kvmessage.DelReq)).Methods(http.MethodDelete)
	r.HandleFunc("/commit", followerDecisionHandler(h, kvmessage.Commit)).Methods(http.MethodPost)
	r.HandleFunc("/abort", followerDecisionHandler(h, kvmessage.Abort)).Methods(http.MethodPost)
	return r
}

func followerKeyHandler(h FollowerHandler, typ kvmessage.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := kvmessage.Request{Type: typ, Key: r.URL.Query().Get("key"), Val: r.URL.Query().Get("val")}
		writeResponse(w, h.Handle(req))
	}
}

func followerDecisionHandler(h FollowerHandler, typ kvmessage.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := kvmessage.Request{Type: typ, Key: r.URL.Query().Get("key")}
		writeResponse(w, h.Handle(req))
	}
}

// NewLeaderRouter builds the HTTP surface a leader process exposes:
// GET/PUT/DELETE for client key traffic, routed through the
// Coordinator's full 2PC/fail-over logic, and POST /register for
// follower admission.
func NewLeaderRouter(c *leader.Coordinator) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", leaderGetHandler(c)).Methods(http.MethodGet)
	r.HandleFunc("/", leaderPutHandler(c)).Methods(http.MethodPut)
	r.HandleFunc("/", leaderDeleteHandler(c)).Methods(http.MethodDelete)
	r.HandleFunc("/register", leaderRegisterHandler(c)).Methods(http.MethodPost)
	return r
}

func leaderGetHandler(c *leader.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		val, err := c.Get(r.Context(), r.URL.Query().Get("key"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeResponse(w, kvmessage.Response{Type: kvmessage.GetResp, Body: val})
	}
}

func leaderPutHandler(c *leader.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if err := c.Put(r.Context(), q.Get("key"), q.Get("val")); err != nil {
			writeError(w, err)
			return
		}
		writeResponse(w, kvmessage.Response{Type: kvmessage.Success})
	}
}

func leaderDeleteHandler(c *leader.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.Delete(r.Context(), r.URL.Query().Get("key")); err != nil {
			writeError(w, err)
			return
		}
		writeResponse(w, kvmessage.Response{Type: kvmessage.Success})
	}
}

func leaderRegisterHandler(c *leader.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		host := q.Get("key")
		port, err := strconv.Atoi(q.Get("val"))
		if err != nil {
			writeResponse(w, kvmessage.Response{Type: kvmessage.ErrorResp, Body: kvmessage.ErrInvalidRequest.Error()})
			return
		}
		if err := c.Register(host, port); err != nil {
			writeError(w, err)
			return
		}
		writeResponse(w, kvmessage.Response{Type: kvmessage.Success})
	}
}

// writeError adapts an error returned by the Coordinator into the ERROR
// response the client sees: a *leader.AbortError or *kvmessage.Error
// both carry a ready-to-display message.
func writeError(w http.ResponseWriter, err error) {
	writeResponse(w, kvmessage.Response{Type: kvmessage.ErrorResp, Body: err.Error()})
}

func writeResponse(w http.ResponseWriter, resp kvmessage.Response) {
	w.WriteHeader(resp.Type.StatusCode())
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}
