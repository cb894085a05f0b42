package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var redirectOnce sync.Once

// redirectLogging routes paho's package level loggers to slog.
func redirectLogging() {
	redirectOnce.Do(func() {
		logger := slog.Default().With("module", "paho")
		paho.CRITICAL = &pahoLogger{logger: logger, level: slog.LevelError}
		paho.ERROR = &pahoLogger{logger: logger, level: slog.LevelError}
		paho.WARN = &pahoLogger{logger: logger, level: slog.LevelWarn}
	})
}

type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (l *pahoLogger) Println(v ...any) {
	l.logger.Log(context.Background(), l.level, fmt.Sprint(v...))
}

func (l *pahoLogger) Printf(format string, v ...any) {
	l.logger.Log(context.Background(), l.level, fmt.Sprintf(format, v...))
}
