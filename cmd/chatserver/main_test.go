package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/roomchat/config"
	"github.com/cyberinferno/roomchat/credential"
	"github.com/cyberinferno/roomchat/logger"
)

func baseConfig() config.Config {
	return config.Config{
		Port:         5000,
		ServiceName:  "chat",
		LogLevel:     "info",
		LogFormat:    "json",
		Credentials:  config.CredentialsBuiltin,
		Cache:        config.CacheNone,
		CacheTTL:     time.Minute,
		WriteTimeout: time.Second,
		AuthTimeout:  time.Second,
		QueueSize:    8,
	}
}

func writeRoster(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  alice: pw1\n  bob: pw2\n"), 0o600))
	return path
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNopLogger()

	check := func(t *testing.T, store credential.Store, id, secret string) {
		t.Helper()

		rec, err := store.Lookup(ctx, id)
		require.NoError(t, err)
		assert.True(t, rec.Matches(secret))

		_, err = store.Lookup(ctx, "nobody")
		assert.ErrorIs(t, err, credential.ErrUnknownUser)
	}

	t.Run("builtin", func(t *testing.T) {
		store, err := openStore(ctx, baseConfig(), log)
		require.NoError(t, err)
		defer store.Close()

		check(t, store, "username", "password")
	})

	t.Run("file with memory cache", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Credentials = config.CredentialsFile
		cfg.CredentialsFile = writeRoster(t)
		cfg.Cache = config.CacheMemory

		store, err := openStore(ctx, cfg, log)
		require.NoError(t, err)
		defer store.Close()

		assert.IsType(t, &credential.CachedStore{}, store)
		check(t, store, "alice", "pw1")
	})

	t.Run("sqlite seeded from file", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Credentials = config.CredentialsSQLite
		cfg.SQLitePath = filepath.Join(t.TempDir(), "users.db")
		cfg.CredentialsFile = writeRoster(t)

		store, err := openStore(ctx, cfg, log)
		require.NoError(t, err)
		check(t, store, "bob", "pw2")
		require.NoError(t, store.Close())

		// Reopening does not import twice.
		store, err = openStore(ctx, cfg, log)
		require.NoError(t, err)
		defer store.Close()

		db, ok := store.(*credential.SQLiteStore)
		require.True(t, ok)
		n, err := db.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Credentials = config.CredentialsFile
		cfg.CredentialsFile = filepath.Join(t.TempDir(), "nope.yaml")

		_, err := openStore(ctx, cfg, log)
		assert.Error(t, err)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Cache = config.CacheRedis
		cfg.RedisAddr = "127.0.0.1:1"

		_, err := openStore(ctx, cfg, log)
		assert.ErrorContains(t, err, "connect to redis")
	})
}

func TestRun_BadArguments(t *testing.T) {
	t.Chdir(t.TempDir())

	assert.Error(t, run([]string{"not-a-port"}))
	assert.Error(t, run([]string{"70000"}))
	assert.Error(t, run([]string{"5000", "6000"}))
	assert.Error(t, run([]string{"-env", "missing.env"}))
}
