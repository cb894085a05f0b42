package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/angas/spotprice/config"
	"github.com/angas/spotprice/hours"
	"github.com/angas/spotprice/task"
	"github.com/lmittmann/tint"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	source := flag.String("source", "", "name of the price source")
	table := flag.Bool("table", false, "print every hour of today")
	flag.Parse()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn, TimeFormat: time.Kitchen})))

	cnfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if err := hours.SetTimezone(cnfg.GetTimezone()); err != nil {
		fail(err)
	}

	s, ok := cnfg.Source(*source)
	if !ok {
		fail(fmt.Errorf("no source named %q", *source))
	}

	e, err := task.NewPriceEngine(s, task.Env{})
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r, ok := e.Update(ctx)
	if !ok {
		fail(fmt.Errorf("no prices from %s", s.Type))
	}

	out, _ := json.MarshalIndent(r.Map(), "", "  ")
	fmt.Println(string(out))
	if r.Stale {
		fmt.Println("prices are from an outdated cache")
	}

	if *table {
		day := hours.StartOfDay(time.Now())
		for ts := day; ts.Before(day.AddDate(0, 0, 1)); ts = ts.Add(time.Hour) {
			fmt.Printf("%s  %8.2f  rank %2d (raw %2d)\n",
				ts.Format("15:04"), e.InstantPrice(ts), e.Ranking(ts, true), e.Ranking(ts, false))
		}
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "pricecheck:", err)
	os.Exit(1)
}
