// Command signal-bus runs the bridge between a Signal messaging gateway
// and a conversational assistant webhook, archiving every message it
// sees along the way (spec §2).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mayzyo/signal-bus/archive"
	"github.com/mayzyo/signal-bus/assistant"
	"github.com/mayzyo/signal-bus/authz"
	"github.com/mayzyo/signal-bus/config"
	"github.com/mayzyo/signal-bus/groupcache"
	"github.com/mayzyo/signal-bus/receive"
	"github.com/mayzyo/signal-bus/router"
	"github.com/mayzyo/signal-bus/signalclient"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	log.Printf("signal-bus starting on %s", hostname)

	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := archive.NewPool(ctx, archive.PoolConfig{
		Host:     cfg.TimescaleHost,
		Port:     cfg.TimescalePort,
		Database: cfg.TimescaleDatabase,
		Username: cfg.TimescaleUsername,
		Password: cfg.TimescalePassword,
	})
	if err != nil {
		log.Printf("archive: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := archive.EnsureSchema(ctx, pool); err != nil {
		log.Printf("archive: schema setup failed: %v", err)
		os.Exit(1)
	}

	writerCfg := archive.DefaultConfig()
	writerCfg.BatchSize = cfg.TimescaleBatchSize
	writerCfg.BatchTimeout = time.Duration(cfg.TimescaleBatchTimeoutSeconds) * time.Second

	writer := archive.New(pool, writerCfg)
	writer.Start()

	resolver := groupcache.NewResolver(cfg.SignalEndpoint, cfg.RegisteredAccount, cfg.GroupCacheSize, nil)
	signalClient := signalclient.New(cfg.SignalEndpoint, cfg.RegisteredAccount)
	assistantClient := assistant.New(cfg.WebhookURL, cfg.AuthToken)
	authList := authz.New(cfg.AuthorizationWhitelist)

	rtr := &router.Router{
		Account:   cfg.RegisteredAccount,
		Authz:     authList,
		Groups:    resolver,
		Archive:   writer,
		Signal:    signalClient,
		Assistant: assistantClient,
	}

	loop := receive.New(cfg.SignalEndpoint, cfg.RegisteredAccount, rtr.Route)

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	<-ctx.Done()
	log.Println("signal-bus: shutdown signal received")
	<-done

	writer.Stop()
	log.Println("signal-bus: stopped")
}
