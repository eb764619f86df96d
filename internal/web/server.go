// Package web provides an HTTP status server for the pet-feeder daemon and
// a manual feed endpoint.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sweeney/pet-feeder/internal/logger"
	"github.com/sweeney/pet-feeder/internal/logic"
	"github.com/sweeney/pet-feeder/internal/status"
)

// FeedRequester hands a manual feed request to the control loop and waits
// for its answer. If ctx ends first the request stays queued and ctx.Err() is
// returned.
type FeedRequester interface {
	RequestFeed(ctx context.Context, source string) error
}

// ErrFeedPending is returned by a FeedRequester when another request is
// already waiting for the control loop.
var ErrFeedPending = errors.New("feed request already queued")

// feedReplyWait bounds how long a POST waits for the control loop.
const feedReplyWait = 2 * time.Second

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	feeds      FeedRequester
	replyWait  time.Duration
}

// New creates a Server that reads state from the given tracker. feeds may be
// nil, in which case the feed endpoint answers 503.
func New(addr string, tracker *status.Tracker, feeds FeedRequester) *Server {
	s := &Server{tracker: tracker, feeds: feeds, replyWait: feedReplyWait}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handlers.LoggingHandler(logger.Writer(), s.Router()),
	}
	return s
}

// Router returns the route table without the access log.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/api/feed", s.handleFeed).Methods(http.MethodPost)

	return r
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

type feedResponse struct {
	Accepted bool   `json:"accepted"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleFeed answers 202 "started" once the control loop has begun a session,
// or 202 "queued" if it did not answer in time. A refusal is a 409.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.feeds == nil {
		writeFeed(w, http.StatusServiceUnavailable, feedResponse{Error: "manual feeding disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.replyWait)
	defer cancel()
	err := s.feeds.RequestFeed(ctx, "http")

	switch {
	case err == nil:
		logger.Info("manual feed started", "source", "http", "remote", r.RemoteAddr)
		writeFeed(w, http.StatusAccepted, feedResponse{Accepted: true, Status: "started"})
	case errors.Is(err, context.DeadlineExceeded):
		logger.Info("manual feed queued", "source", "http", "remote", r.RemoteAddr)
		writeFeed(w, http.StatusAccepted, feedResponse{Accepted: true, Status: "queued"})
	case errors.Is(err, logic.ErrFeedingActive), errors.Is(err, ErrFeedPending):
		writeFeed(w, http.StatusConflict, feedResponse{Error: err.Error()})
	default:
		logger.Warn("manual feed failed", "remote", r.RemoteAddr, "err", err)
		writeFeed(w, http.StatusServiceUnavailable, feedResponse{Error: err.Error()})
	}
}

func writeFeed(w http.ResponseWriter, code int, resp feedResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
