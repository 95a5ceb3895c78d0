package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/meetpoint/meetpoint/internal/automation"
	"github.com/meetpoint/meetpoint/internal/observability"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/platform/cache"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// StageLister finds the stages carrying a given action kind. Satisfied
// by automation.Repository.
type StageLister interface {
	ListStagesWithKind(ctx context.Context, kindKey string) ([]int64, error)
}

// StageResolver loads stage metadata. Satisfied by pipeline.Service.
type StageResolver interface {
	GetStage(ctx context.Context, id int64) (pipeline.Stage, error)
}

// TargetLister enumerates the records sitting in a stage. The events
// and tasks repositories satisfy it for their own kinds.
type TargetLister interface {
	ListRefsByStage(ctx context.Context, stageID int64) ([]resource.Ref, error)
}

// ExpirationScanJob periodically re-runs the queues of stages that carry
// a time-expiration trigger, so elapsed intervals take effect without a
// user moving the record. A redis lock keeps concurrent workers from
// scanning twice.
type ExpirationScanJob struct {
	Redis   *redis.Client
	Stages  StageLister
	Resolve StageResolver
	Listers map[resource.Kind]TargetLister
	Runner  automation.Runner
	Metrics *observability.Metrics
	Logger  *slog.Logger
	LockTTL time.Duration
}

// Handle executes one sweep.
func (j *ExpirationScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("expiration scan: not configured")
	}
	logger := j.logger()

	if j.Redis != nil {
		ttl := j.LockTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		lock := cache.NewLock(j.Redis, shared.ExpirationScanLockKey, ttl)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("scan already running elsewhere, skipping")
			return nil
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("scan lock release failed", slog.Any("error", err))
			}
		}()
	}

	start := time.Now()
	stageIDs, err := j.Stages.ListStagesWithKind(ctx, automation.KindTimeExpiration)
	if err != nil {
		j.Metrics.IncScanFailures()
		return err
	}

	// Stages are independent of each other; runs within one stage stay
	// sequential because the targets share that stage's queue.
	var targets atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, stageID := range stageIDs {
		group.Go(func() error {
			n, err := j.scanStage(groupCtx, stageID, logger)
			targets.Add(int64(n))
			return err
		})
	}
	if err := group.Wait(); err != nil {
		j.Metrics.IncScanFailures()
		return err
	}

	j.Metrics.AddScanTargets(int(targets.Load()))
	logger.Info("completed expiration scan",
		slog.Int("stages", len(stageIDs)),
		slog.Int64("targets", targets.Load()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ExpirationScanJob) scanStage(ctx context.Context, stageID int64, logger *slog.Logger) (int, error) {
	stage, err := j.Resolve.GetStage(ctx, stageID)
	if err != nil {
		logger.Warn("scan stage lookup failed", slog.Int64("stage_id", stageID), slog.Any("error", err))
		return 0, nil
	}
	lister, ok := j.Listers[targetKind(stage.Workflow.Kind)]
	if !ok {
		return 0, nil
	}
	refs, err := lister.ListRefsByStage(ctx, stageID)
	if err != nil {
		logger.Warn("scan target listing failed", slog.Int64("stage_id", stageID), slog.Any("error", err))
		return 0, nil
	}

	targets := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			return targets, ctx.Err()
		}
		targets++
		report, err := j.Runner.RunQueue(ctx, stageID, ref)
		if err != nil {
			logger.Warn("scan queue run failed",
				slog.Int64("stage_id", stageID),
				slog.String("target", ref.String()),
				slog.Any("error", err),
			)
			continue
		}
		if report.Status != automation.RunCompleted {
			logger.Info("scan queue run finished",
				slog.Int64("stage_id", stageID),
				slog.String("target", ref.String()),
				slog.String("status", string(report.Status)),
			)
		}
	}
	return targets, nil
}

// targetKind maps a workflow owner to the kind of record its stages hold.
// Project pipelines hold events, event pipelines hold tasks.
func targetKind(workflow resource.Kind) resource.Kind {
	if workflow == resource.KindProject {
		return resource.KindEvent
	}
	return resource.KindTask
}

func (j *ExpirationScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeExpirationScan))
	}
	return slog.Default().With(slog.String("job", TaskTypeExpirationScan))
}
