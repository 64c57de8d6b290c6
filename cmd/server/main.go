// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jklem/uno/internal/cache"
	"github.com/jklem/uno/internal/game"
	"github.com/jklem/uno/internal/handlers"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Redis is optional: without it the action feed is simply disabled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := cache.ConnectRedis(ctx); err != nil {
		logger.WithError(err).Warn("redis unavailable, action feed disabled")
	}
	cancel()

	cfg := game.ManagerConfig{
		SweepInterval: envDuration("ROOM_SWEEP_INTERVAL_SEC", 0),
		IdleTimeout:   envDuration("ROOM_IDLE_TIMEOUT_SEC", 0),
	}
	manager := game.NewRoomManager(cfg, logger, handlers.WSBroadcaster(logger))
	manager.StartSweeper()
	defer manager.Stop()

	router := handlers.NewRouter(logger, manager)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// envDuration reads an env var holding seconds; zero falls through to the
// manager defaults.
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
