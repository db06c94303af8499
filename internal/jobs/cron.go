package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/repo"
)

// retentionLockKey guards the purge job so only one replica runs it.
const retentionLockKey int64 = 74_20_01

// Scheduler owns the background jobs.
type Scheduler struct {
	cron          *cron.Cron
	repo          *repo.Repo
	retentionDays int
	log           zerolog.Logger
}

func NewScheduler(r *repo.Repo, retentionDays int, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		repo:          r,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "jobs").Logger(),
	}
}

// Start registers the retention purge on the given cron spec and starts the
// scheduler.
func (s *Scheduler) Start(retentionSpec string) error {
	if _, err := s.cron.AddFunc(retentionSpec, s.purgeHistory); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("spec", retentionSpec).Int("retention_days", s.retentionDays).Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) purgeHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	got, err := s.repo.TryAdvisoryLock(ctx, retentionLockKey)
	if err != nil {
		s.log.Error().Err(err).Msg("retention lock failed")
		return
	}
	if !got {
		s.log.Debug().Msg("retention purge held by another replica")
		return
	}
	defer s.repo.AdvisoryUnlock(ctx, retentionLockKey)

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	n, err := s.repo.PurgeHistory(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("retention purge failed")
		return
	}
	s.log.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("history purged")
}
