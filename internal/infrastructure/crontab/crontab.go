package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"chat-server/internal/config"
	"chat-server/internal/domain/conversation"
	"chat-server/internal/infrastructure/metrics"
	"chat-server/internal/utils/platformerrors"
)

const (
	defaultRetentionInterval = 60 // minutes
	cronJobTimeout           = 5 * time.Minute
)

// Crontab runs periodic maintenance: the fallback "create a chat when the
// user has none" flow leaves empty conversations behind, so untouched empty
// records are pruned on a schedule.
type Crontab struct {
	ctab *crontab.Crontab
	cfg  *config.Config
	repo conversation.ConversationRepository
	log  zerolog.Logger
}

func NewCrontab(cfg *config.Config, repo conversation.ConversationRepository, log zerolog.Logger) *Crontab {
	return &Crontab{
		ctab: crontab.New(),
		cfg:  cfg,
		repo: repo,
		log:  log.With().Str("component", "crontab").Logger(),
	}
}

func (c *Crontab) Run(ctx context.Context) error {
	if c.cfg.RetentionEnabled {
		interval := c.cfg.RetentionIntervalMins
		if interval <= 0 {
			interval = defaultRetentionInterval
		}

		// minute steps only go up to 59, anything beyond runs hourly
		cronExpr := fmt.Sprintf("*/%d * * * *", interval)
		if interval >= 60 {
			cronExpr = "0 * * * *"
		}
		if err := c.ctab.AddJob(cronExpr, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), cronJobTimeout)
			defer cancel()
			c.pruneEmptyConversations(jobCtx)
		}); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to schedule retention job")
		}
		c.log.Info().Int("interval_minutes", interval).Msg("conversation retention scheduled")
	}

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) pruneEmptyConversations(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(c.cfg.RetentionEmptyAfterH) * time.Hour)
	pruned, err := c.repo.DeleteEmptyOlderThan(ctx, cutoff)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to prune empty conversations")
		return
	}
	if pruned > 0 {
		metrics.ConversationsPrunedTotal.Add(float64(pruned))
		c.log.Info().Int64("pruned", pruned).Msg("removed stale empty conversations")
	}
}
