// Package main - admin-token
// Mints an operator JWT for the admin routes using the server's JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/parkpilot/server/internal/network"
	"github.com/parkpilot/server/internal/platform/config"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	subject := flag.String("sub", "operator", "Token subject")
	ttl := flag.Duration("ttl", cfg.Auth.TokenTTL, "Token lifetime")
	secret := flag.String("secret", cfg.Auth.JWTSecret, "Signing secret (defaults to JWT_SECRET)")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "admin-token: JWT_SECRET is not set and -secret was not given")
		os.Exit(2)
	}

	token, err := network.IssueAdminToken(*secret, cfg.Auth.Issuer, *subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "admin-token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
}
