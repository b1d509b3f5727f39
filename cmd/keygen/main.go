package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/supporthq/sdkdoctor/internal/auth"
)

func main() {
	org := flag.String("org", "", "organization ID (required)")
	team := flag.String("team", "", "team ID (required)")
	user := flag.String("user", "", "user ID (optional, omit for service accounts)")
	name := flag.String("name", "", "human-friendly key name (required)")
	env := flag.String("env", "prod", "environment prefix")
	rpm := flag.Int("rpm", 0, "requests per minute limit (0 = default)")
	dailyQuota := flag.Int("daily-quota", 0, "analyses per day (0 = unlimited)")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *org == "" || *team == "" || *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -org, -team, and -name are required")
		os.Exit(1)
	}

	// Generate key
	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	keyHash := auth.HashKey(rawKey)
	keyPrefix := auth.KeyPrefix(rawKey)

	// Parse expiry
	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}
	expiresAt := time.Now().Add(dur)

	// Connect to database
	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "sdkdoctor")
		pass := envOrDefault("DB_PASSWORD", "sdkdoctor-dev")
		dbname := envOrDefault("DB_NAME", "sdkdoctor")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	// Serialize allowed_models as empty JSON array
	allowedModels, _ := json.Marshal([]string{})

	// Insert key
	var keyID string
	err = conn.QueryRow(ctx, `
		INSERT INTO api_keys (key_hash, key_prefix, organization_id, team_id, user_id, name, allowed_models, rpm_limit, daily_quota, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, keyHash, keyPrefix, *org, *team, nilIfEmpty(*user), *name, allowedModels, nilIfZero(*rpm), nilIfZero(*dailyQuota), expiresAt).Scan(&keyID)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== SDK Doctor API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:       %s\n", keyID)
	fmt.Printf("  Key Prefix:   %s\n", keyPrefix)
	fmt.Printf("  Organization: %s\n", *org)
	fmt.Printf("  Team:         %s\n", *team)
	if *user != "" {
		fmt.Printf("  User:         %s\n", *user)
	}
	if *rpm > 0 {
		fmt.Printf("  RPM Limit:    %d\n", *rpm)
	}
	if *dailyQuota > 0 {
		fmt.Printf("  Daily Quota:  %d analyses\n", *dailyQuota)
	}
	fmt.Printf("  Expires:      %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  API Key (save this - it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Println("====================================")
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
