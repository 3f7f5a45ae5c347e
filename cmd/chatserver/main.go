// Command chatserver runs the multi-client chat server.
//
// Usage:
//
//	chatserver [-env file] [port]
//
// Settings come from CHAT_* environment variables (see package config); a
// positional port overrides CHAT_PORT.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/roomchat/config"
	"github.com/cyberinferno/roomchat/conntable"
	"github.com/cyberinferno/roomchat/credential"
	"github.com/cyberinferno/roomchat/logger"
	"github.com/cyberinferno/roomchat/protocol"
	"github.com/cyberinferno/roomchat/session"
	"github.com/cyberinferno/roomchat/tcpserver"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("chatserver", flag.ContinueOnError)
	envFile := fs.String("env", "", "load settings from this .env file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: chatserver [-env file] [port]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}

	if fs.NArg() > 1 {
		fs.Usage()
		return fmt.Errorf("expected at most one argument, got %d", fs.NArg())
	}

	if fs.NArg() == 1 {
		port, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", fs.Arg(0), err)
		}

		cfg.Port = port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	defer func() {
		_ = log.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	defer func() {
		log.Info("closing credential store")
		_ = store.Close()
	}()

	engine := protocol.NewEngine(
		credential.NewAuthenticator(store),
		conntable.New[protocol.ConnID](),
		session.NewRegistry[protocol.ConnID](),
		log,
	)

	server := &tcpserver.TCPServer{
		Logger:       log.With(logger.F("component", "tcpserver")),
		Name:         cfg.ServiceName,
		Addr:         cfg.Address(),
		Engine:       engine,
		WriteTimeout: cfg.WriteTimeout,
		AuthTimeout:  cfg.AuthTimeout,
		QueueSize:    cfg.QueueSize,
	}

	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down gracefully")
	server.Stop()

	return nil
}

func newLogger(cfg config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	return logger.New(logger.Options{
		ServiceName: cfg.ServiceName,
		Level:       level,
		Format:      logger.Format(cfg.LogFormat),
		Dir:         cfg.LogDir,
		Out:         os.Stderr,
	})
}

// openStore builds the credential store selected by cfg, wrapped in the
// configured cache.
func openStore(ctx context.Context, cfg config.Config, log logger.Logger) (credential.Store, error) {
	var store credential.Store

	switch cfg.Credentials {
	case config.CredentialsFile:
		roster, err := credential.LoadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}

		log.Info("loaded credentials", logger.F("file", cfg.CredentialsFile), logger.F("users", roster.Len()))
		store = roster

	case config.CredentialsSQLite:
		db, err := credential.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		if cfg.CredentialsFile != "" {
			roster, err := credential.LoadFile(cfg.CredentialsFile)
			if err != nil {
				_ = db.Close()
				return nil, err
			}

			added, err := db.Import(ctx, roster)
			if err != nil {
				_ = db.Close()
				return nil, err
			}

			log.Info("imported credentials", logger.F("file", cfg.CredentialsFile), logger.F("added", added))
		}

		count, err := db.Count(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}

		log.Info("opened credential database", logger.F("path", cfg.SQLitePath), logger.F("users", count))
		store = db

	default:
		store = credential.NewMapStore(credential.DefaultRoster())
		log.Info("using built-in credentials")
	}

	switch cfg.Cache {
	case config.CacheMemory:
		store = credential.NewCachedStore(store, credential.NewMemoryCache(cfg.CacheTTL*2), cfg.CacheTTL)

	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			_ = store.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}

		store = credential.NewCachedStore(
			store, credential.NewRedisCache(client, cfg.ServiceName+":credentials:"), cfg.CacheTTL,
		)
	}

	return store, nil
}
