// -----------------------------------------------------------------------
// Scheduler - optional in-process cron trigger for the polling run
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/models"
)

// PollRunner is the job the scheduler triggers
type PollRunner interface {
	Run(ctx context.Context, now time.Time) (*models.PollRunSummary, error)
}

// Service wraps a cron runner around the polling job. Deployments normally
// drive polling through the external /cron/poll-decisions trigger; this
// covers environments without an external scheduler.
type Service struct {
	cron   *cron.Cron
	runner PollRunner
	config *common.SchedulerConfig
	logger arbor.ILogger
}

// NewService creates the scheduler; it does nothing until Start is called
func NewService(runner PollRunner, config *common.SchedulerConfig, logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(cron.WithSeconds()),
		runner: runner,
		config: config,
		logger: logger,
	}
}

// Start registers the polling job and begins the cron loop. A no-op when
// the scheduler is disabled in config.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Debug().Msg("Internal scheduler disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		summary, err := s.runner.Run(context.Background(), time.Now().UTC())
		if err != nil {
			s.logger.Error().Err(err).Msg("Scheduled polling run failed")
			return
		}
		s.logger.Info().
			Int("checked", summary.MeetingsChecked).
			Int("found", summary.DecisionsFound).
			Msg("Scheduled polling run completed")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Internal scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for a running job to finish
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
