// Command token mints a signed access token for local testing, e.g.
//
//	go run ./cmd/token -user 7 -role CUSTOMER
//
// The secret is read from JWT_SECRET (a .env file is honoured).
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/movie-reservation/internal/model"
	"github.com/iliyamo/movie-reservation/internal/utils"
)

func main() {
	userID := flag.Uint64("user", 1, "user id placed in sub")
	role := flag.String("role", model.RoleCustomer, "CUSTOMER, ADMIN or PAYMENTS")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	switch *role {
	case model.RoleCustomer, model.RoleAdmin, model.RolePayments:
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	tok, err := utils.NewAccessToken(secret, *userID, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
