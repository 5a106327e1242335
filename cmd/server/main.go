package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/secretbroker/internal/api"
	"github.com/org/secretbroker/internal/broker"
	"github.com/org/secretbroker/internal/registry"
	"github.com/org/secretbroker/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr  string `yaml:"listen_addr"`
	TLSCertFile string `yaml:"tls_cert"`
	TLSKeyFile  string `yaml:"tls_key"`
	VaultAddr   string `yaml:"vault_addr"`
	ConsulAddr  string `yaml:"consul_addr"`
	Mount       string `yaml:"mount"`
	RoleID      string `yaml:"role_id"`
	SecretID    string `yaml:"secret_id"`
	LogLevel    string `yaml:"log_level"`
}

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	cfgFile := "config.yaml"
	if v := os.Getenv("BROKER_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr: ":8300",
		VaultAddr:  "http://vault:8200",
		ConsulAddr: "http://consul:8500",
		Mount:      "dynamic-secrets",
		LogLevel:   "info",
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	// Env overrides
	if v := os.Getenv("BROKER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("VAULT_ADDR"); v != "" {
		cfg.VaultAddr = v
	}
	if v := os.Getenv("CONSUL_HTTP_ADDR"); v != "" {
		cfg.ConsulAddr = v
	}
	if v := os.Getenv("VAULT_ROLE_ID"); v != "" {
		cfg.RoleID = v
	}
	if v := os.Getenv("VAULT_SECRET_ID"); v != "" {
		cfg.SecretID = v
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.RoleID == "" || cfg.SecretID == "" {
		log.Fatal().Msg("role_id and secret_id must be configured (or VAULT_ROLE_ID / VAULT_SECRET_ID env vars)")
	}

	ctx := context.Background()

	// Connect to the secret store
	store, err := storage.NewVaultStore(cfg.VaultAddr, cfg.Mount)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create vault client")
	}
	auth, err := store.Login(ctx, cfg.RoleID, cfg.SecretID)
	if err != nil {
		log.Fatal().Err(err).Msg("vault authentication failed")
	}
	log.Info().Bool("renewable", auth.Renewable).Int("lease_seconds", auth.LeaseDuration).Msg("authenticated to vault")

	if auth.Renewable && auth.LeaseDuration > 0 {
		go renewLoop(store, auth.LeaseDuration)
	}

	// Connect to the catalog
	catalog, err := storage.NewConsulCatalog(cfg.ConsulAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create consul client")
	}

	types := registry.New(catalog)
	b := broker.New(store, catalog, types, log.Logger)

	srv := api.NewServer(b, types, api.Config{
		ListenAddr:  cfg.ListenAddr,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
	})

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}

// renewLoop renews the broker's own store token at two thirds of its lease.
// A failed renewal is fatal for renewals but not for the process; requests
// start failing once the token expires and the health of the deployment
// surfaces it.
func renewLoop(store *storage.VaultStore, leaseSeconds int) {
	interval := time.Duration(leaseSeconds) * time.Second * 2 / 3
	for {
		time.Sleep(interval)
		if err := store.RenewSelf(context.Background(), leaseSeconds); err != nil {
			log.Warn().Err(err).Msg("token renewal failed, stopping renewal loop")
			return
		}
	}
}
