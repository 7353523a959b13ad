package rpcenvelope

import (
	"encoding/json"
	"net/http"
	"time"
)

// Server exposes a Dispatcher at "/kapi/<service>", matching the CORS
// preflight + POST route pair the teacher's HealthServer registers onto a
// single ServeMux.
type Server struct {
	mux *http.ServeMux
}

// NewServer builds a Server that dispatches every POST to "/kapi/<service>"
// through dispatcher.
func NewServer(service string, dispatcher *Dispatcher) *Server {
	mux := http.NewServeMux()
	path := "/kapi/" + service
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		resp := dispatcher.Handle(r.Context(), req)

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return &Server{mux: mux}
}

// Handler returns the server's http.Handler, for embedding into a larger
// mux (e.g. alongside /health and /metrics).
func (s *Server) Handler() http.Handler { return s.mux }

// Start runs the server standalone on addr.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}
