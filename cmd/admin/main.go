package main

import (
	"fmt"
	"os"

	"exam-system/internal/auth"
	"exam-system/internal/config"
	"exam-system/pkg/database"
	"exam-system/pkg/logger"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.Open(cfg.DBDriver, cfg.Postgres(), cfg.DBPath, log)
	if err != nil {
		log.Fatal("failed to connect to database", "driver", cfg.DBDriver, "error", err)
	}

	cli := commandLine{
		db:   db,
		auth: auth.NewService(auth.NewRepository(db), cfg.JWTSecret, cfg.JWTTTL, log),
		log:  log,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			log.Error("command failed", "error", err)
		}
		log.Sync()
		os.Exit(1)
	}
}
