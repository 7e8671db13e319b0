package engine

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/conveyorci/conveyor/pkg/conveyor/core"
)

// Worker processes builds from the queue until the context is cancelled.
func Worker(ctx context.Context, id int, runnerID int64, buildRepo BuildRepo, buildActionRepo BuildActionRepo,
	registry map[string]func() core.StepHandler, queue <-chan *QueuedBuild) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("Worker stopping due to context cancel", "worker_id", id)
			return
		case qb := <-queue:
			slog.Info("Worker starting build", "worker_id", id, "build_id", qb.Build.ID)
			RunBuild(ctx, qb, buildRepo, buildActionRepo, registry, runnerID, strconv.Itoa(id))
			slog.Info("Worker finished build", "worker_id", id, "build_id", qb.Build.ID)
		}
	}
}
