package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// admin-token mints a dashboard bearer token for the admin order routes.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "admin-token", Output: os.Stderr})

	_ = godotenv.Load()

	subject := flag.String("subject", "", "operator identifier stored in the token subject")
	role := flag.String("role", string(enums.StaffRoleAdmin), "staff role")
	ttl := flag.Int("ttl", 0, "token lifetime in minutes (defaults to STOREFRONT_JWT_EXPIRATION_MINUTES)")
	flag.Parse()

	// only the JWT block is needed, so skip the full config validation
	var jwtCfg config.JWTConfig
	if err := envconfig.Process(config.EnvPrefix, &jwtCfg); err != nil {
		logg.Error(ctx, "failed to load jwt config", err)
		os.Exit(1)
	}
	if *ttl > 0 {
		jwtCfg.ExpirationMinutes = *ttl
	}

	staffRole, err := enums.ParseStaffRole(*role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid role: %v\n", err)
		os.Exit(1)
	}

	token, err := pkgAuth.MintAccessToken(jwtCfg, time.Now(), pkgAuth.AccessTokenPayload{
		Subject: *subject,
		Role:    staffRole,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint token: %v\n", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"subject":     *subject,
		"role":        string(staffRole),
		"ttl_minutes": jwtCfg.ExpirationMinutes,
	}), "admin token minted")
	fmt.Println(token)
}
