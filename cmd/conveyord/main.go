package main

import (
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/conveyorci/conveyor/pkg/conveyor"
)

func main() {

	// optional .env file for local development
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded settings from .env")
	}

	//you may do your own logger setup here or use this default one with slog
	conveyor.SetupLogger()

	if err := conveyor.Start(nil); err != nil {
		slog.Error("Engine exited with error", "error", err)
	}
}
