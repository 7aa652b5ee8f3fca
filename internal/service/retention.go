package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/invitedesk/invite-dispatch-service/environments"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
)

type retentionRepository interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper deletes invitations past the configured retention
// window on a cron schedule. Job records need no sweep, their store TTL
// expires them. With no retention configured the sweeper stays idle and
// invitations are kept forever.
type RetentionSweeper struct {
	repo   retentionRepository
	maxAge time.Duration
	spec   string
	cron   *cron.Cron
}

func NewRetentionSweeper(repo retentionRepository, cfg environments.RetentionConfig) *RetentionSweeper {
	return &RetentionSweeper{
		repo:   repo,
		maxAge: cfg.InvitationMaxAge,
		spec:   cfg.CronSpec,
	}
}

func (s *RetentionSweeper) Start() error {
	if s.maxAge <= 0 {
		logger.Infof("Invitation retention disabled, keeping records indefinitely")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()

	logger.Infof("Invitation retention sweep scheduled (%q, max age %v)", s.spec, s.maxAge)
	return nil
}

func (s *RetentionSweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *RetentionSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.maxAge)

	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logger.Errorf("Retention sweep failed: %v", err)
		return
	}

	if deleted > 0 {
		logger.Infof("Retention sweep deleted %d invitations older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
