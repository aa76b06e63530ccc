package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/satoshishop/backend/pkg/auth"
	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/db"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/logger"
)

// There is no staff login endpoint; tokens are issued out of band with this
// tool against the staff_users table.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "mint-token"})

	_ = godotenv.Load()

	email := flag.String("email", "", "staff user email")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "missing -email")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "mint-token",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	var staff models.StaffUser
	err = dbClient.DB().WithContext(ctx).
		Where("email = ? AND is_active", *email).
		First(&staff).Error
	if err != nil {
		logg.Error(ctx, "failed to find active staff user", err)
		os.Exit(1)
	}

	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		StaffID: staff.ID,
		Email:   staff.Email,
		Role:    staff.Role,
	})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
