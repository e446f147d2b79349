package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/devblac/multisig-watch/internal/metrics"
	"github.com/devblac/multisig-watch/internal/storage"
	"github.com/gorilla/mux"
)

type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
	// Checkpoint backs the status routes; nil disables them.
	Checkpoint func(ctx context.Context) (storage.Checkpoint, bool, error)
	Metrics    bool
}

type statusResponse struct {
	LatestHeight string `json:"latestHeight"`
	Timestamp    string `json:"timestamp"`
}

// Router registers the status, health and metrics routes.
func Router(checker Checker) *mux.Router {
	r := mux.NewRouter()

	if checker.Checkpoint != nil {
		// Last persisted cursor; kept at "/" for existing dashboards.
		r.HandleFunc("/", statusHandler(checker.Checkpoint)).Methods("GET")
		r.HandleFunc("/status", statusHandler(checker.Checkpoint)).Methods("GET")
	}

	r.HandleFunc("/healthz", healthHandler(checker)).Methods("GET")

	if checker.Metrics {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	return r
}

// Serve starts the HTTP server in the background.
func Serve(addr string, checker Checker) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(checker),
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}

func statusHandler(load func(ctx context.Context) (storage.Checkpoint, bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		cp, ok, err := load(ctx)
		if err != nil || !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{
			LatestHeight: strconv.FormatUint(cp.NextBlock, 10),
			Timestamp:    cp.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
}

func healthHandler(checker Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		if checker.DBPing != nil {
			if err := checker.DBPing(ctx); err != nil {
				status["db"] = "fail"
				code = http.StatusServiceUnavailable
			} else {
				status["db"] = "ok"
			}
		}
		if checker.RPCPing != nil {
			if err := checker.RPCPing(ctx); err != nil {
				status["rpc"] = "fail"
				code = http.StatusServiceUnavailable
			} else {
				status["rpc"] = "ok"
			}
		}
		writeJSON(w, code, status)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
