// Package retention schedules the expiry purge. The backend's TTL deletion
// is best-effort: reads filter expired records immediately, and this runner
// reclaims the space on a cron schedule.
package retention

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"historydb/pkg/config"
	"historydb/pkg/logger"
	"historydb/pkg/state"
	"historydb/pkg/store"
)

var storedCfg *config.RetentionConfig

// SetConfig stores the retention config so tests and admin triggers can
// invoke purge runs on demand.
func SetConfig(cfg config.RetentionConfig) {
	storedCfg = &cfg
}

// RunImmediate triggers a single purge run using the stored config.
func RunImmediate(ctx context.Context) error {
	if storedCfg == nil {
		return errors.New("no retention config registered")
	}
	return runOnce(ctx, *storedCfg)
}

// Start starts the purge scheduler if enabled and returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig) (context.CancelFunc, error) {
	SetConfig(cfg)
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	// default: daily at 02:00
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", zap.String("cron", cfg.Cron))
		return nil, errors.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Info("retention_enabled", zap.String("cron", cronExpr), zap.Bool("dry_run", cfg.DryRun))
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, cronExpr)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until that
// time, then kicks a purge run.
func runScheduler(ctx context.Context, cfg config.RetentionConfig, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := runOnce(ctx, cfg); err != nil {
				logger.Error("retention_run_error", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// lastRun is the artifact written after every purge run.
type lastRun struct {
	StartedAt  string            `json:"started_at"`
	FinishedAt string            `json:"finished_at"`
	DryRun     bool              `json:"dry_run"`
	Result     store.PurgeResult `json:"result"`
}

func runOnce(ctx context.Context, cfg config.RetentionConfig) error {
	start := time.Now().UTC()
	maxBytes, err := cfg.BatchBytes()
	if err != nil {
		return err
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.BatchSize+1)
	}
	res, err := store.PurgeExpired(ctx, store.PurgeOptions{
		BatchSize:     cfg.BatchSize,
		MaxBatchBytes: maxBytes,
		DryRun:        cfg.DryRun,
		Limiter:       limiter,
	})
	if err != nil {
		return errors.Wrap(err, "purge run")
	}
	logger.Info("purge_run_complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("expired", res.Expired),
		zap.Int("deleted", res.Deleted),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Duration("took", time.Since(start)))
	if state.PathsVar.Retention != "" {
		if werr := state.WriteArtifact(state.PathsVar.Retention, "last_run", lastRun{
			StartedAt:  start.Format(time.RFC3339),
			FinishedAt: time.Now().UTC().Format(time.RFC3339),
			DryRun:     cfg.DryRun,
			Result:     res,
		}); werr != nil {
			logger.Warn("purge_artifact_write_failed", zap.Error(werr))
		}
	}
	return nil
}
