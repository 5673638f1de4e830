package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"virucide/internal/auth"
	"virucide/internal/cache"
	"virucide/internal/database"
	"virucide/internal/handlers"
	"virucide/internal/middleware"
)

func main() {
	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	// persistence and the action-history queue are both optional; the
	// engine runs fully in memory without them
	if os.Getenv("PG_HOST") != "" {
		database.ConnectDB()
		defer database.DB.Close()
	} else {
		logger.Warn("PG_HOST not set; running without profile persistence")
	}

	if os.Getenv("REDIS_ADDR") != "" {
		if err := cache.ConnectRedis(); err != nil {
			logger.Warnf("redis unavailable, action history disabled: %v", err)
		}
	}

	// init auth keys
	privPath, pubPath := os.Getenv("JWT_PRIVATE_KEY_PATH"), os.Getenv("JWT_PUBLIC_KEY_PATH")
	if privPath != "" && pubPath != "" {
		if err := auth.InitFromPath(privPath, pubPath); err != nil {
			log.Fatalf("failed to load auth keys: %v", err)
		}
	} else {
		auth.Init()
	}

	gs := handlers.NewGameServer(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", handlers.PingHandler)
	mux.Handle("/ws", middleware.LogMiddleware(logger)(handlers.WSHandler(logger, gs)))

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: time.Second * 10,
	}

	port := os.Getenv("VIRUCIDE_SERVICE_PORT")
	if port == "" {
		port = "8080"
	}
	l, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	log.Printf("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		log.Printf("failed to serve: %v", err)
	case sig := <-sigs:
		log.Printf("terminating: %v", sig)
	}
}
