package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	haven "github.com/havenyouth/haven-go"
)

// loadEnv applies .env and process environment overrides on top of the saved
// config. Environment always wins over the config file.
func loadEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("HAVEN_BASE_URL"); v != "" {
		cfg.Default.BaseURL = v
	}
	if v := os.Getenv("HAVEN_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv("HAVEN_USER_ID"); v != "" {
		cfg.Auth.UserID = v
	}
}

// getClient creates an authenticated Haven client from config and environment.
func getClient() *haven.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	loadEnv(cfg)

	if cfg.Auth.Token == "" || cfg.Auth.UserID == "" {
		fmt.Fprintln(os.Stderr, "No session. Set auth.token and auth.user_id first.")
		os.Exit(1)
	}

	opts := []haven.ClientOption{
		haven.WithSession(cfg.Auth.UserID, cfg.Auth.Token),
	}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, haven.WithBaseURL(cfg.Default.BaseURL))
	}
	return haven.NewClient(cfg.Auth.Token, opts...)
}

// getOffline opens the durable offline layer backed by ~/.haven/offline.db.
func getOffline(ctx context.Context, c *haven.Client) (*haven.Offline, *haven.SQLiteStore) {
	dir, err := configDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to locate config dir: %v\n", err)
		os.Exit(1)
	}
	store, err := haven.OpenSQLiteStore(ctx, filepath.Join(dir, "offline.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open offline store: %v\n", err)
		os.Exit(1)
	}
	off := haven.NewOffline(store, haven.NewNetProbe(c.BaseURL()), nil)
	return off, store
}
