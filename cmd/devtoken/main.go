// Command devtoken mints a bearer token for local development, signed with
// JWT_SECRET the same way the identity provider does.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"chatcore/internal/security"
)

func main() {
	var (
		userID = flag.StringP("user", "u", "", "user id to put in the sub claim (required)")
		name   = flag.StringP("name", "n", "", "display name; defaults to the user id")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
		secret = flag.String("secret", "", "signing secret; defaults to $JWT_SECRET")
	)
	flag.Parse()

	_ = godotenv.Load()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "devtoken: --user is required")
		flag.Usage()
		os.Exit(2)
	}
	key := *secret
	if key == "" {
		key = os.Getenv("JWT_SECRET")
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "devtoken: set --secret or JWT_SECRET")
		os.Exit(2)
	}

	tokens := security.NewTokenService(key, *ttl)
	token, err := tokens.CreateWithTTL(security.Identity{UserID: *userID, DisplayName: *name}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
