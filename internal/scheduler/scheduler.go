package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"crypto-chat-assistant/internal/market"
	"crypto-chat-assistant/internal/store"

	"github.com/robfig/cron/v3"
)

type Config struct {
	PurgeCron   string
	WarmupCron  string
	WarmupLimit int
}

type Purger interface {
	Purge() int
}

type TopCoinsSource interface {
	GetTopCoins(ctx context.Context, limit int) ([]market.MarketCoin, error)
}

type SnapshotRecorder interface {
	InsertQuoteSnapshot(ctx context.Context, qs store.QuoteSnapshot) error
}

// Scheduler runs the background cache jobs. Recorder may be nil.
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	cache    Purger
	market   TopCoinsSource
	recorder SnapshotRecorder
	ctx      context.Context
	now      func() time.Time
}

func New(ctx context.Context, cfg Config, cache Purger, mkt TopCoinsSource, rec SnapshotRecorder) *Scheduler {
	if cfg.WarmupLimit <= 0 {
		cfg.WarmupLimit = 10
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		cfg:      cfg,
		cache:    cache,
		market:   mkt,
		recorder: rec,
		ctx:      ctx,
		now:      time.Now,
	}
}

// Register adds the purge and warmup jobs. An empty spec skips that job.
func (s *Scheduler) Register() error {
	if spec := strings.TrimSpace(s.cfg.PurgeCron); spec != "" {
		if _, err := s.cron.AddFunc(spec, s.RunPurge); err != nil {
			return fmt.Errorf("register purge job: %w", err)
		}
	}
	if spec := strings.TrimSpace(s.cfg.WarmupCron); spec != "" {
		if _, err := s.cron.AddFunc(spec, func() {
			if err := s.RunWarmup(s.ctx); err != nil {
				log.Printf("warmup job error: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("register warmup job: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("scheduler started (purge=%q warmup=%q)", s.cfg.PurgeCron, s.cfg.WarmupCron)
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Printf("scheduler stopped")
}

func (s *Scheduler) RunPurge() {
	if n := s.cache.Purge(); n > 0 {
		log.Printf("cache purge: dropped %d expired entries", n)
	}
}

// RunWarmup refreshes the top coins listing so chat requests hit a warm
// cache, and records one quote snapshot per coin.
func (s *Scheduler) RunWarmup(ctx context.Context) error {
	coins, err := s.market.GetTopCoins(ctx, s.cfg.WarmupLimit)
	if err != nil {
		return fmt.Errorf("warmup top coins: %w", err)
	}
	if s.recorder == nil {
		return nil
	}
	ts := s.now().UnixMilli()
	failed := 0
	for _, coin := range coins {
		qs := store.QuoteSnapshot{
			TS:        ts,
			CoinID:    coin.ID,
			Symbol:    coin.Symbol,
			Price:     coin.CurrentPrice,
			MarketCap: coin.MarketCap,
			Volume:    coin.TotalVolume,
		}
		if coin.PriceChangePercentage24h != nil {
			qs.ChangePct = *coin.PriceChangePercentage24h
		}
		if err := s.recorder.InsertQuoteSnapshot(ctx, qs); err != nil {
			log.Printf("warmup snapshot error: coin=%s err=%v", coin.ID, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("warmup: %d of %d snapshots failed", failed, len(coins))
	}
	return nil
}
