package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/farellandr/lunchticket/internal/logger"
	"github.com/farellandr/lunchticket/internal/server"
	"github.com/joho/godotenv"
)

func main() {
	envErr := loadEnv(".env")
	log := logger.New(os.Getenv("ENVIRONMENT"), os.Getenv("LOG_LEVEL"))
	if envErr != nil {
		log.Fatal().Err(envErr).Msg("error loading .env file")
	}

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("bot failed to start")
	}
}

// loadEnv reads path into the environment. A missing file is not an error;
// variables already set in the environment win.
func loadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
