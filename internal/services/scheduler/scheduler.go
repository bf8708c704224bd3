package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
)

// Scheduler runs the periodic background reindex. Rebuilding from persisted
// chunks picks up compaction and keeps the served snapshot's version
// advancing, which ages out stale cache entries.
type Scheduler struct {
	cron    *cron.Cron
	ingest  interfaces.IngestService
	config  *common.ReindexConfig
	logger  arbor.ILogger
	entryID cron.EntryID
}

// NewScheduler creates the reindex scheduler. Disabled schedulers are valid
// and simply never start.
func NewScheduler(ingest interfaces.IngestService, config *common.ReindexConfig, logger arbor.ILogger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		ingest: ingest,
		config: config,
		logger: logger,
	}

	if !config.Enabled {
		return s, nil
	}
	if config.Schedule == "" {
		return nil, common.NewConfigError("reindex.schedule", "required when reindex is enabled")
	}

	entryID, err := s.cron.AddFunc(config.Schedule, s.run)
	if err != nil {
		return nil, common.NewConfigError("reindex.schedule", err.Error())
	}
	s.entryID = entryID
	return s, nil
}

// Start begins the schedule. No-op when disabled.
func (s *Scheduler) Start() {
	if !s.config.Enabled {
		return
	}
	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Msg("Reindex scheduler started")
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	version, err := s.ingest.Reindex(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled reindex failed")
		return
	}
	s.logger.Info().
		Int64("index_version", int64(version)).
		Msg("Scheduled reindex complete")
}
