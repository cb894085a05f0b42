package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/angas/spotprice/config"
	"github.com/angas/spotprice/database"
	"github.com/angas/spotprice/hours"
	"github.com/angas/spotprice/logging"
	"github.com/angas/spotprice/mqtt"
	"github.com/angas/spotprice/publish"
	"github.com/angas/spotprice/task"
	"github.com/angas/spotprice/www"
	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := hours.SetTimezone(cnfg.GetTimezone()); err != nil {
		panic(fmt.Sprintf("failed to set timezone: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cnfg.Logging.GetConsoleLevel(),
		TimeFormat: time.RFC3339,
	})
	slog.New(consoleHandler).Debug("spotprice is starting...", slog.String("version", Version))

	db, err := database.New(ctx, cnfg.Database.GetPath())
	if err != nil {
		panic(fmt.Sprintf("failed to connect to database: %v", err))
	}
	defer db.Close()

	logger := slog.New(logging.NewMultiHandler(
		consoleHandler,
		logging.NewSQLiteHandler(db, cnfg.Logging.GetDbLevel(), cnfg.Logging.GetDbAttrsFormat())))
	slog.SetDefault(logger)

	// Now we can use the logger to log database operations into the database itself
	db.SetLogger(logger.With("module", "database"))

	cnfg.WatchChanges(func(e fsnotify.Event) {
		logger.Warn("config file changed, restart to apply", slog.String("file", e.Name), slog.String("op", e.Op.String()))
	})

	tasks := task.NewTasks(db, cnfg)
	if isDevMode() {
		logger.Info("dev mode, skipping task scheduling")
	} else {
		tasks.Run()
		defer tasks.Stop()
	}

	hub := www.NewHub(logger.With("module", "www"))
	status := www.NewStatus(hub)

	loops, err := newLoops(logger, cnfg, db, status)
	if err != nil {
		exitWithError(logger, err)
	}
	if len(loops) == 0 {
		exitWithError(logger, errors.New("no enabled sources"))
	}

	g, gctx := errgroup.WithContext(ctx)
	go hub.Run(gctx)

	if cnfg.Api.Port > 0 {
		server := www.NewServer(db, status, hub, cnfg.Api, Version)
		g.Go(func() error {
			if err := server.Run(gctx); err != nil {
				logger.Error("status server stopped", slog.Any("error", err))
			}
			return nil
		})
	}

	for _, l := range loops {
		g.Go(func() error { return l.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, publish.ErrConnect) {
			exitWithError(logger, err)
		}
		logger.Error("publisher failed", slog.Any("error", err))
	}
}

// newLoops creates one publisher per enabled source, each with its own
// broker session.
func newLoops(logger *slog.Logger, cnfg *config.AppConfig, db *database.Database, status *www.Status) ([]*publish.Loop, error) {
	names := make([]string, 0, len(cnfg.Sources))
	for name := range cnfg.Sources {
		names = append(names, name)
	}
	slices.Sort(names)

	var loops []*publish.Loop
	for _, name := range names {
		s := cnfg.Sources[name]
		client := mqtt.New(mqtt.Options{
			Host:     cnfg.Mqtt.Host,
			Port:     cnfg.Mqtt.Port,
			Username: cnfg.Mqtt.Username,
			Password: cnfg.Mqtt.Password,
			ClientID: cnfg.Mqtt.GetClientId(name),
			Topics: mqtt.Topics{
				Pub:       mqttTopic(s.GetPubTopic()),
				Available: mqttTopic(s.GetAvailableTopic()),
			},
		})

		action, err := task.NewAction(s, task.Env{DB: db, Subscriber: client})
		if errors.Is(err, task.ErrSkipped) {
			logger.Warn("skipping source", slog.String("source", name), slog.Any("reason", err))
			continue
		}
		if err != nil {
			return nil, err
		}

		loop := publish.NewLoop(name, action, client, publish.Options{
			ExecutionDelay: s.GetExecutionPeriod(),
			ExceptionDelay: s.GetRetryPeriod(),
			Observer:       status,
		})
		status.Add(loop, s.Type)
		loops = append(loops, loop)
		logger.Info("source configured", slog.String("source", name), slog.String("type", s.Type))
	}
	return loops, nil
}

func mqttTopic(t config.AppConfigTopic) mqtt.Topic {
	return mqtt.Topic{Topic: t.Topic, Qos: t.Qos, Retain: t.Retain}
}

func isDevMode() bool {
	return strings.EqualFold(os.Getenv("APP_ENV"), "development")
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	if syncer, ok := logger.Handler().(interface{ Sync() error }); ok {
		if syncErr := syncer.Sync(); syncErr != nil {
			logger.Error("failed to flush logger", slog.Any("error", syncErr))
		}
	}

	time.Sleep(2 * time.Second)
	os.Exit(1)
}
