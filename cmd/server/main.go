// cmd/server/main.go
package main

import (
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/zonezero/server/internal/events"
	"github.com/zonezero/server/internal/handlers"
	"github.com/zonezero/server/internal/middleware"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	pub, err := events.NewFromEnv(logger)
	if err != nil {
		logger.Fatalf("events: %v", err)
	}
	if pub == nil {
		logger.Info("event feed disabled (REDIS_ADDR not set)")
	}

	srv := handlers.NewServer(logger, pub)
	logged := middleware.LogMiddleware(logger)

	mux := http.NewServeMux()

	// live channel
	mux.Handle("/ws/lobby", logged(srv.LobbyWSHandler()))

	// request/response mirrors
	mux.Handle("/create_lobby", logged(srv.CreateLobbyHandler()))
	mux.Handle("/join_lobby", logged(srv.JoinLobbyHandler()))
	mux.Handle("/start_game", logged(srv.StartGameHandler()))
	mux.Handle("/lobbies", logged(srv.ListLobbiesHandler()))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
