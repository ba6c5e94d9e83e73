package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"crypto-chat-assistant/internal/api"
	"crypto-chat-assistant/internal/config"
	"crypto-chat-assistant/internal/intent"
	"crypto-chat-assistant/internal/market"
	"crypto-chat-assistant/internal/portfolio"
	"crypto-chat-assistant/internal/scheduler"
	"crypto-chat-assistant/internal/store"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded, using process environment")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/app.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))

	var st *store.Store
	if cfg.Store.Sqlite.Path != "" {
		st, err = store.Open(cfg.Store.Sqlite.Path)
		if err != nil {
			log.Fatalf("store error: %v", err)
		}
	} else {
		log.Printf("store.sqlite.path empty, valuation history disabled")
	}

	clock := market.SystemClock{}
	limiter := market.NewRateLimiter(cfg.Market.MinRequestInterval(), clock)
	cache := market.NewResponseCache(cfg.Market.CacheTTL(), clock)
	fetcher := market.NewFetcher(limiter, clock, cfg.Market.MaxRetries)
	client := market.NewClient(market.ClientConfig{
		BaseURL:          cfg.Market.BaseURL,
		Timeout:          cfg.Market.Timeout(),
		UserAgent:        cfg.Market.UserAgent,
		BatchSize:        cfg.Market.BatchSize,
		BatchDelay:       cfg.Market.BatchDelay(),
		DescriptionDelay: cfg.Market.DescriptionDelay(),
	}, fetcher, cache, clock)

	var recorder portfolio.Recorder
	if st != nil {
		recorder = st
	}
	holdings := portfolio.NewStore(client, recorder, nil)

	classifier := intent.NewLLMClassifier(intent.Config{
		Enabled:    cfg.IntentAgent.Enabled,
		Model:      cfg.IntentAgent.Model,
		APIKey:     cfg.IntentAgent.APIKey,
		BaseURL:    cfg.IntentAgent.BaseURL,
		ByAzure:    cfg.IntentAgent.ByAzure,
		APIVersion: cfg.IntentAgent.APIVersion,
		TimeoutMs:  cfg.IntentAgent.TimeoutMs,
	}, intent.NewKeywordClassifier())

	var sched *scheduler.Scheduler
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Scheduler.Enabled {
		var snapshots scheduler.SnapshotRecorder
		if st != nil {
			snapshots = st
		}
		sched = scheduler.New(ctx, scheduler.Config{
			PurgeCron:   cfg.Scheduler.PurgeCron,
			WarmupCron:  cfg.Scheduler.WarmupCron,
			WarmupLimit: cfg.Scheduler.WarmupLimit,
		}, cache, client, snapshots)
		if err := sched.Register(); err != nil {
			log.Fatalf("scheduler error: %v", err)
		}
		sched.Start()
	}

	// Hooks run concurrently; jobs must stop before the store closes.
	h.OnShutdown = append(h.OnShutdown, func(context.Context) {
		cancel()
		if sched != nil {
			sched.Stop()
		}
		if err := st.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
	})

	api.RegisterRoutes(h, api.Deps{
		Market:     client,
		Portfolio:  holdings,
		History:    st,
		Classifier: classifier,
	})

	log.Printf("server starting on %s (log.level=%s, market=%s)", addr, cfg.Log.Level, cfg.Market.BaseURL)
	h.Spin()
}
