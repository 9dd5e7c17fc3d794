package main

import (
	"net/http"
	"os"

	"scratchpad/config/database"
	"scratchpad/internal/pad/repository"
	"scratchpad/internal/pad/service"
	"scratchpad/pkg/logger"
	"scratchpad/router"
	"scratchpad/socket"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	db := database.Connect()
	defer db.Close()

	repo := repository.NewPadRepository(db)
	if err := repo.EnsureSchema(); err != nil {
		logger.Sugar.Fatalf("Failed to prepare pads table: %v", err)
	}

	store, err := service.NewPadStore(repo)
	if err != nil {
		logger.Sugar.Fatalf("Failed to load pads from database: %v", err)
	}
	// Retries writes that failed while the database was unreachable.
	go store.FlushWorker()

	hub := socket.NewHub(store)
	go hub.Run()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Sugar.Infof("ScratchPad backend listening on :%s", port)
	if err := http.ListenAndServe(":"+port, router.Setup(store, hub)); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
