// Command owner creates the platform owner account. Owners cannot sign up
// through the API; run this once per deployment.
package main

import (
	"context"
	"time"

	"govtender/internal/app"
	"govtender/internal/auth"
	"govtender/internal/config"
	"govtender/internal/repository"
	"govtender/internal/service"

	"github.com/caarlos0/env/v6"
	"github.com/rs/zerolog/log"
)

type ownerConfig struct {
	UserId   int64  `env:"OWNER_USERID,required"`
	Password string `env:"OWNER_PASSWORD,required"`
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := app.SetupLogger(cfg)

	var owner ownerConfig
	if err = env.Parse(&owner); err != nil {
		logger.Fatal().Err(err).Msg("load owner credentials")
	}

	repo, err := repository.NewRepository(nil, &cfg.PostgresConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("open repository")
	}
	defer repo.Close()

	svc := service.NewService(repo, auth.NewTokenService(cfg.TokenConfig), service.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, err := svc.BootstrapOwner(ctx, owner.UserId, owner.Password)
	if err != nil {
		logger.Error().Err(err).Msg("create owner")
		return
	}
	logger.Info().Str("owner", created.Id).Int64("userId", created.UserId).Msg("owner created")
}
