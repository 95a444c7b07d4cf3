package config

import (
	"os"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdmissionFile   string // optional YAML overriding the built-in tables
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	AdminToken      string
	TokenTTL        time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("AUDITGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "auditgate"
	}
	audience := os.Getenv("JWT_AUDIENCE")
	if audience == "" {
		audience = "auditgate"
	}

	return Server{
		Addr:            addr,
		AdmissionFile:   os.Getenv("ADMISSION_CONFIG"),
		JWTSigningKey:   jwtSigningKey,
		JWTIssuer:       issuer,
		JWTAudience:     audience,
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		TokenTTL:        durationFromEnv("TOKEN_TTL", 15*time.Minute),
		RequestTimeout:  durationFromEnv("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: durationFromEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}
