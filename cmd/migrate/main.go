package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	"github.com/geocoder89/accounthub/internal/observability"
)

func main() {
	dbURL := flag.String("db", "", "database url (defaults to DATABASE_URL / DB_* from the environment)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [-db url] [up|down|drop|version]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	action := "up"
	if flag.NArg() > 0 {
		action = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	url := cfg.DBURL
	if *dbURL != "" {
		url = *dbURL
	}

	if err := db.Migrate(url, action); err != nil {
		log.Error("migration failed", "action", action, "err", err)
		os.Exit(1)
	}

	log.Info("migration completed", "action", action)
}
