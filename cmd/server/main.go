// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/tkgch/daifugo/internal/game"
	"github.com/tkgch/daifugo/internal/handlers"
	"github.com/tkgch/daifugo/internal/journal"
	"github.com/tkgch/daifugo/internal/middleware"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Action journaling is optional; the game runs fully in memory without it.
	var jr *journal.Journal
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		db := 0
		if v := os.Getenv("REDIS_DB"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				db = n
			}
		}
		queue := os.Getenv("JOURNAL_QUEUE")
		if queue == "" {
			queue = journal.DefaultQueueName
		}
		var err error
		jr, err = journal.Connect(addr, db, queue)
		if err != nil {
			logger.Warnf("journal disabled, redis unreachable: %v", err)
		} else {
			defer jr.Close()
			logger.Infof("Journaling actions to %s (queue %s).", addr, queue)
		}
	}

	rooms := game.NewRoomStore(logger, jr)
	srv := handlers.NewServer(logger, rooms)

	r := mux.NewRouter()
	r.Use(middleware.LogMiddleware(logger))
	r.HandleFunc("/ws", handlers.WSHandler(srv))
	r.HandleFunc("/rooms", handlers.ListRoomsHandler(srv)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handlers.HealthHandler()).Methods(http.MethodGet)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
