package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/logging"
)

// chainPruner forgets finished chains.
type chainPruner interface {
	Prune(cutoff time.Time) int
}

// runRetention purges terminal progress records and chains older than
// retention every interval until ctx is done.
func runRetention(ctx context.Context, interval, retention time.Duration, purger core.ProgressPurger, chains chainPruner, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			purgeOnce(ctx, now.Add(-retention), purger, chains, log)
		}
	}
}

func purgeOnce(ctx context.Context, cutoff time.Time, purger core.ProgressPurger, chains chainPruner, log *zap.Logger) {
	log = logging.OrNop(log)
	removed, err := purger.PurgeProgress(ctx, cutoff)
	if err != nil {
		log.Warn("purge progress", zap.Error(err))
	}
	pruned := chains.Prune(cutoff)
	if removed > 0 || pruned > 0 {
		log.Info("retention sweep", zap.Int64("progress_removed", removed), zap.Int("chains_pruned", pruned))
	}
}
