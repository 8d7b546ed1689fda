package main

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/redis/go-redis/v9"

	accountrepo "credential-authority/internal/account/repository"
	"credential-authority/internal/config"
	"credential-authority/internal/directory"
	healthhandler "credential-authority/internal/health/handler"
	"credential-authority/internal/security"
	sessionrepo "credential-authority/internal/session/repository"
	"credential-authority/internal/verification"
)

// newDirectory returns the account directory the engine talks to and a close function.
func newDirectory(cfg *config.Config, conn *sql.DB) (accountrepo.Directory, func(), error) {
	if cfg.DirectoryMode == config.DirectoryRemote {
		var d directory.Discovery = directory.StaticDiscovery(cfg.DirectoryEndpointsList())
		if cfg.DirectoryDNSDomain != "" {
			d = directory.DNSDiscovery{Domain: cfg.DirectoryDNSDomain}
		}
		client := directory.NewClient(d, cfg.DirectoryService, directory.WithAttemptTimeout(cfg.DirectoryAttemptTimeout))
		log.Printf("directory: remote %s", cfg.DirectoryService)
		return directory.NewRemoteDirectory(client), func() { _ = client.Close() }, nil
	}
	if conn == nil {
		return accountrepo.NewMemoryRepository(), func() {}, nil
	}
	return accountrepo.NewPostgresRepository(conn), func() {}, nil
}

func newTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.UsesKeyPair() {
		priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewKeyTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTExpiresTime)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("no signing key configured")
	}
	return security.NewHMACTokenProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTExpiresTime)
}

func newSessionRepo(cfg *config.Config, conn *sql.DB) sessionrepo.Repository {
	if conn == nil {
		return sessionrepo.NewMemoryRepository(cfg.SessionTTL)
	}
	return sessionrepo.NewPostgresRepository(conn, cfg.SessionTTL)
}

func newRevocationList(rdb *redis.Client) security.RevocationList {
	if rdb == nil {
		return security.NewMemoryRevocationList()
	}
	return security.NewRedisRevocationList(rdb)
}

func newChallengeStore(rdb *redis.Client) verification.Store {
	if rdb == nil {
		return verification.NewMemoryStore()
	}
	return verification.NewRedisStore(rdb)
}

func pingers(conn *sql.DB, rdb *redis.Client) map[string]healthhandler.Pinger {
	m := map[string]healthhandler.Pinger{}
	if conn != nil {
		m["postgres"] = conn
	}
	if rdb != nil {
		m["redis"] = healthhandler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return m
}
