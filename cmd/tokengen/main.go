// Package main provides a CLI tool for generating test tokens for the
// auditgate API. These tokens use the dev signing key and will NOT work in
// production.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"auditgate/internal/jwttoken"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "auditgate"
	defaultAudience = "auditgate"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id,omitempty"`
	APIKeyID  string `json:"api_key_id,omitempty"`
	ExpiresIn string `json:"expires_in"`
	Usage     string `json:"usage"`
}

func main() {
	userID := flag.String("user-id", "", "User ID. Generated if empty and -api-key-id is unset.")
	apiKeyID := flag.String("api-key-id", "", "API key ID (mutually exclusive with -user-id)")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	signingKey := flag.String("key", devSigningKey, "HMAC signing key")
	issuer := flag.String("issuer", defaultIssuer, "Token issuer")
	audience := flag.String("audience", defaultAudience, "Token audience")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if *userID == "" && *apiKeyID == "" {
		*userID = uuid.NewString()
	}

	svc := jwttoken.NewJWTService(*signingKey, *issuer, *audience, *ttl)
	token, err := svc.GenerateAccessToken(context.Background(), *userID, *apiKeyID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if *asJSON {
		out := tokenOutput{
			Token:     token,
			UserID:    *userID,
			APIKeyID:  *apiKeyID,
			ExpiresIn: ttl.String(),
			Usage:     `curl -H "Authorization: Bearer <token>" http://localhost:8080/v1/quota/balance`,
		}
		_ = json.NewEncoder(os.Stdout).Encode(out)
		return
	}

	fmt.Println(token)
}
