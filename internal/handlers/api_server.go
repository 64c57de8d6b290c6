// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jklem/uno/internal/game"
	"github.com/jklem/uno/internal/middleware"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// NewRouter assembles the HTTP surface: health, server info, the WebSocket
// endpoint, and an optional static frontend from STATIC_DIR.
func NewRouter(logger *logrus.Logger, manager *game.RoomManager) *mux.Router {
	startedAt := time.Now()

	r := mux.NewRouter()
	r.Use(middleware.LogMiddleware(logger))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/info", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"version": Version,
			"rooms":   manager.RoomCount(),
			"uptime":  time.Since(startedAt).String(),
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", WSHandler(logger, manager))

	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
	}

	return r
}
