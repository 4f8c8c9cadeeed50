package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kingdavid28/chatstatus/internal/config"
	"github.com/kingdavid28/chatstatus/internal/delivery"
	httpapi "github.com/kingdavid28/chatstatus/internal/http"
	"github.com/kingdavid28/chatstatus/internal/metrics"
	"github.com/kingdavid28/chatstatus/internal/server"
	"github.com/kingdavid28/chatstatus/internal/session"
	"github.com/kingdavid28/chatstatus/internal/store"
	"github.com/kingdavid28/chatstatus/internal/store/redisstore"
	"github.com/kingdavid28/chatstatus/internal/store/sqlitestore"
	"github.com/kingdavid28/chatstatus/internal/tracking"
	"github.com/kingdavid28/chatstatus/internal/ws"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("chatstatus: %v", err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatstatus",
		Short:         "Message delivery-status tracking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	return root
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the status API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.ResolvePath()
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func run(cfg config.Config) error {
	st, err := buildStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	metrics.Init()

	hub := ws.NewHub()
	sess := session.New(st, session.Config{
		Delivery: delivery.Config{
			DeliveryTimeout: cfg.Delivery.DeliveryTimeout(),
			ReadTimeout:     cfg.Delivery.ReadTimeout(),
		},
		HistoryLimit: cfg.Tracking.HistoryLimit,
	}).WithBroadcaster(hub)

	sweeper := tracking.NewSweeper(sess.Tracking(), cfg.Tracking.SweepInterval(), cfg.Tracking.CleanupMaxAge())
	sweeper.Start(context.Background())

	svc := httpapi.NewService(sess)
	router := httpapi.NewRouter(svc, hub.Handler())

	srv, err := server.New(server.Config{
		Addr:       cfg.Addr,
		SocketPath: cfg.SocketPath,
		Handler:    router,
	})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	log.Printf("chatstatus: listening on %s", cfg.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		sweeper.Stop()
		sess.Close()
		return err
	case sig := <-sigCh:
		log.Printf("chatstatus: %s received, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("chatstatus: shutdown: %v", err)
	}
	sweeper.Stop()
	sess.Close()
	return nil
}

func buildStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewInMemory(), nil
	case "sqlite":
		inner, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlitestore.NewResilient(inner), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisstore.New(rdb), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
