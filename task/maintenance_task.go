package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/angas/spotprice/config"
	"github.com/angas/spotprice/database"
)

type maintenanceStep struct {
	name string
	run  func(ctx context.Context) error
}

// NewMaintenanceTask backs up the database, then trims backups, the log
// and the price history. A failing step is logged and the rest still run.
func NewMaintenanceTask(logger *slog.Logger, db *database.Database, cnfg *config.AppConfig) func() {
	retention := cnfg.Database.GetDataRetentionDays()
	steps := []maintenanceStep{
		{"backup", db.Backup},
		{"purge backups", func(ctx context.Context) error {
			return db.PurgeBackups(ctx, cnfg.Database.GetBackupRetentionDays())
		}},
		{"purge log", func(ctx context.Context) error {
			return db.PurgeLog(ctx, cnfg.Logging.GetDbMaxEntries())
		}},
		{"purge energy prices", func(ctx context.Context) error {
			return db.PurgeEnergyPrice(ctx, retention)
		}},
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()

		start := time.Now()
		failed := 0
		for _, step := range steps {
			if err := step.run(ctx); err != nil {
				failed++
				logger.Error("maintenance step failed", slog.String("step", step.name), slog.Any("error", err))
			}
		}
		logger.Info("maintenance task done",
			slog.Int("failedSteps", failed),
			slog.Duration("elapsed", time.Since(start)))
	}
}
