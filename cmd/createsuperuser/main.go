package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

func main() {
	var req service.SuperuserRequest
	flag.StringVar(&req.Email, "email", "", "superuser email (required)")
	flag.StringVar(&req.Password, "password", os.Getenv("SUPERUSER_PASSWORD"), "superuser password, defaults to $SUPERUSER_PASSWORD")
	flag.StringVar(&req.FirstName, "first-name", "", "optional first name")
	flag.StringVar(&req.LastName, "last-name", "", "optional last name")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if !pg.Enabled() {
		logger.Fatal("POSTGRES_DSN is required to create a superuser")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	accounts := service.NewAccountService(*cfg, service.AccountDependencies{
		Accounts: repository.NewAccountRepository(pg.PoolHandle()),
		Logger:   logger,
	})

	account, created, err := accounts.CreateSuperuser(ctx, req)
	if err != nil {
		if domainErr := apperrors.ToDomainError(err); domainErr.Code == apperrors.KindValidation {
			fmt.Fprintln(os.Stderr, domainErr.Message)
			for field, msg := range domainErr.Details {
				fmt.Fprintf(os.Stderr, "%s: %v\n", field, msg)
			}
			os.Exit(2)
		}
		logger.Fatal("failed to create superuser", zap.Error(err))
	}

	if created {
		fmt.Printf("Superuser %s created (id %s).\n", account.Email, account.ID)
		return
	}
	fmt.Printf("Existing account %s promoted to superuser (id %s).\n", account.Email, account.ID)
}
