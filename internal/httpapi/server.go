// Package httpapi exposes spec.md §6's external HTTP surface: synchronous
// and asynchronous Run, status polling, health/metrics, and the board
// consult endpoint. Grounded on the teacher's internal/httpapi server
// shape (net/http.ServeMux with Go 1.22+ method-and-path patterns),
// rebuilt onto the Conductor/Executor surface this spec names in place of
// the teacher's playground API.
package httpapi

import (
	"net/http"

	"taskmesh/internal/conductor"
	"taskmesh/internal/persistence/databases"
	"taskmesh/internal/retrieval"
)

// ragSnapshotter is the narrow slice of Retrieval's surface /status needs
// to report rag_latency, accepted as an interface so this package never
// imports the concrete retrieval.Service type's full surface.
type ragSnapshotter interface {
	Snapshot() retrieval.Snapshot
}

// Server is the process's single HTTP entry point.
type Server struct {
	conductor      *conductor.Conductor
	rag            ragSnapshotter
	board          databases.BoardStore
	boardAPIKey    string
	metricsHandler http.Handler
	mux            *http.ServeMux
}

func NewServer(cond *conductor.Conductor, rag ragSnapshotter, board databases.BoardStore, boardAPIKey string, metricsHandler http.Handler) *Server {
	s := &Server{conductor: cond, rag: rag, board: board, boardAPIKey: boardAPIKey, metricsHandler: metricsHandler, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /run", s.handleRun)
	s.mux.HandleFunc("GET /run/status/{task_id}", s.handleRunStatus)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/board/consult", s.requireAPIKey(s.handleBoardConsult))
	if s.metricsHandler != nil {
		s.mux.Handle("GET /metrics", s.metricsHandler)
	}
}
