// Package scheduler implements the update scheduler (C6): a periodic
// tick that finds stale items, prioritizes and round-robins them
// across scrapers into a task queue, and a process function that
// enforces per-scraper cooldown before invoking the sync engine.
package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ramkansal/mangavault/internal/registry"
	"github.com/ramkansal/mangavault/internal/storage"
	"github.com/ramkansal/mangavault/internal/syncengine"
	"github.com/ramkansal/mangavault/pkg/taskqueue"
)

const staleThreshold = time.Hour
const criticalBatchLimit = 500

// MangaUpdateJob is the payload carried by the task queue's jobs, per
// spec.md §4.6.
type MangaUpdateJob struct {
	ItemID    int64
	ScraperID string
}

// Scheduler drives the periodic stale-item scan and owns the task
// queue jobs are dispatched through.
type Scheduler struct {
	storage  storage.Storage
	registry *registry.Registry
	log      zerolog.Logger

	cooldown *cooldownTracker
	ignored  sync.Map // scraper id -> struct{}

	queue *taskqueue.TaskQueue[MangaUpdateJob]
	cron  *cron.Cron

	searchInterval time.Duration
}

type Config struct {
	MaxConcurrency   int64
	SearchInterval   time.Duration
	CooldownDuration time.Duration
	QueueMaxSize     int
	QueueMaxFail     uint32
	AgingInterval    time.Duration
}

func New(store storage.Storage, reg *registry.Registry, cfg Config, log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		storage:        store,
		registry:       reg,
		log:            log,
		cooldown:       newCooldownTracker(cfg.CooldownDuration),
		searchInterval: cfg.SearchInterval,
	}

	s.queue = taskqueue.New(taskqueue.Config[MangaUpdateJob]{
		MaxSize:         cfg.QueueMaxSize,
		MaxFail:         cfg.QueueMaxFail,
		ChannelCapacity: cfg.QueueMaxSize,
		MaxConcurrency:  cfg.MaxConcurrency,
		Strategy:        taskqueue.BestEffort,
		AgingInterval:   cfg.AgingInterval,
		Process:         s.processJob,
	}, log)

	return s
}

// Start begins the periodic tick using robfig/cron's "@every"
// schedule and returns immediately; call Stop to shut everything
// down.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := "@every " + s.searchInterval.String()
	_, err := s.cron.AddFunc(spec, func() { s.tick(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron schedule and drains the task queue.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}
	s.queue.Shutdown()
}

// tick runs one scan-and-enqueue pass: critical batch first, then a
// residual batch if the queue still has slack.
func (s *Scheduler) tick(ctx context.Context) {
	threshold := time.Now().Add(-staleThreshold)

	critical, err := s.storage.FindItemsStale(ctx, threshold, criticalBatchLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch critical stale batch")
		return
	}
	enqueued := s.enqueueBatch(critical)

	slack := s.queue.MaxSize() - s.queue.Len()
	if slack > 0 {
		residual, err := s.storage.FindItemsStale(ctx, threshold, 0)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to fetch residual stale batch")
		} else {
			enqueued += s.enqueueBatch(residual)
		}
	}

	s.log.Info().Int("scheduled", enqueued).Msg("scheduler tick complete")
}

// enqueueBatch buckets items by scraper id, then round-robins across
// scrapers inserting one job per scraper per pass (property #12): no
// single scraper monopolizes the pass.
func (s *Scheduler) enqueueBatch(items []storage.StaleItem) int {
	ordered := roundRobinOrder(items)
	now := time.Now()
	enqueued := 0
	for _, si := range ordered {
		priority := jobPriority(si.FavCount, si.Item.UpdatedAt, now)
		job := MangaUpdateJob{ItemID: si.Item.ID, ScraperID: si.Item.ScraperID}
		key := jobKey(job)
		if s.queue.Insert(key, job, priority) {
			enqueued++
		}
	}
	return enqueued
}

// roundRobinOrder buckets items by scraper id and interleaves the
// buckets one item at a time, in first-seen scraper order, so a
// batch dominated by one scraper never delays the others to the end
// (property #12). Pulled out as a pure function so the interleaving
// itself is directly testable without a running task queue.
func roundRobinOrder(items []storage.StaleItem) []storage.StaleItem {
	buckets := make(map[string][]storage.StaleItem)
	order := make([]string, 0)
	for _, si := range items {
		if _, seen := buckets[si.Item.ScraperID]; !seen {
			order = append(order, si.Item.ScraperID)
		}
		buckets[si.Item.ScraperID] = append(buckets[si.Item.ScraperID], si)
	}

	out := make([]storage.StaleItem, 0, len(items))
	for {
		progressed := false
		for _, scraperID := range order {
			bucket := buckets[scraperID]
			if len(bucket) == 0 {
				continue
			}
			out = append(out, bucket[0])
			buckets[scraperID] = bucket[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

func jobKey(job MangaUpdateJob) string {
	return job.ScraperID + ":" + strconv.FormatInt(job.ItemID, 10)
}

// processJob is the task queue's process_fn: cooldown-gate the
// scraper, look up its plugin, and hand off to the sync engine.
func (s *Scheduler) processJob(ctx context.Context, item *taskqueue.QueueItem[MangaUpdateJob]) error {
	job := item.Payload

	if _, ignored := s.ignored.Load(job.ScraperID); ignored {
		return nil
	}

	if wait := s.cooldown.remaining(job.ScraperID); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.cooldown.markUsed(job.ScraperID)

	plugin, ok := s.registry.Get(job.ScraperID)
	if !ok {
		s.ignored.Store(job.ScraperID, struct{}{})
		s.log.Warn().Str("scraper_id", job.ScraperID).Msg("scraper has no registered plugin, ignoring")
		return nil
	}

	err := syncengine.SyncItem(ctx, s.storage, plugin, job.ItemID, job.ScraperID)
	if syncengine.IsPermanent(err) {
		s.log.Error().Err(err).Int64("item_id", job.ItemID).Str("scraper_id", job.ScraperID).
			Msg("permanent sync failure, not retrying")
		if syncengine.IsScraperNotFound(err) {
			s.ignored.Store(job.ScraperID, struct{}{})
		}
		return nil
	}
	return err
}
