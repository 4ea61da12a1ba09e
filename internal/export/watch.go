package export

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Watch runs refresh on the cron schedule until ctx is done. Runs never
// overlap; a failed run is logged and the schedule continues.
func Watch(ctx context.Context, schedule string, refresh func(context.Context) error, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if err := refresh(ctx); err != nil {
			log.Error("scheduled export failed", zap.Error(err))
			return
		}
		log.Debug("scheduled export done")
	})
	if err != nil {
		return fmt.Errorf("refresh schedule %q: %w", schedule, err)
	}
	c.Start()
	log.Info("export watch started", zap.String("schedule", schedule))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
