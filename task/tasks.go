package task

import (
	"context"
	"log/slog"

	"github.com/angas/spotprice/config"
	"github.com/angas/spotprice/database"
	"github.com/angas/spotprice/hours"
	"github.com/robfig/cron/v3"
)

const MaintenanceSchedule = "30 2 * * *"

// Tasks runs the scheduled housekeeping of the database.
type Tasks struct {
	cron            *cron.Cron
	MaintenanceTask func()
}

func NewTasks(db *database.Database, cnfg *config.AppConfig) *Tasks {
	logger := slog.Default().With("module", "tasks")
	return &Tasks{
		cron:            cron.New(cron.WithLocation(hours.Location())),
		MaintenanceTask: NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), db, cnfg),
	}
}

func (t *Tasks) Run() {
	_, err := t.cron.AddFunc(MaintenanceSchedule, t.MaintenanceTask)
	if err != nil {
		panic(err)
	}
	t.cron.Start()
}

// Entries is the number of scheduled jobs.
func (t *Tasks) Entries() int {
	return len(t.cron.Entries())
}

func (t *Tasks) Stop() context.Context {
	return t.cron.Stop()
}
