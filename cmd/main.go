package main

import (
	"govtender/internal/app"
	"govtender/internal/config"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := app.SetupLogger(cfg)

	a, err := app.NewApp(app.WithConfig(cfg), app.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("init app")
	}

	a.Run()
}
