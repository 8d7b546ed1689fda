// migrate applies the embedded schema migrations to DATABASE_URL.
//
//	go run ./cmd/migrate                 # apply everything pending
//	go run ./cmd/migrate -direction down -steps 1
//	go run ./cmd/migrate -version        # print the schema version and exit
//	go run ./cmd/migrate -force 1        # mark version 1 clean after a failed run
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"credential-authority/internal/config"
	"credential-authority/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "number of migrations to run; 0 runs all")
	force := flag.Int("force", -1, "set the schema version without running SQL")
	showVersion := flag.Bool("version", false, "print the schema version and exit")
	verbose := flag.Bool("v", false, "log every migration step")
	flag.Parse()

	d, err := migrate.ParseDirection(*direction)
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	r, err := migrate.New(cfg.DatabaseURL, *verbose)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Printf("migrate: close: %v", err)
		}
	}()

	if err := run(r, d, *steps, *force, *showVersion); err != nil {
		log.Print(err)
		_ = r.Close()
		os.Exit(1)
	}
}

func run(r *migrate.Runner, d migrate.Direction, steps, force int, showVersion bool) error {
	switch {
	case showVersion:
	case force >= 0:
		if err := r.Force(force); err != nil {
			return err
		}
	default:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err := r.Apply(ctx, d, steps)
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("schema already at target version")
		} else if err != nil {
			return err
		}
	}
	v, err := r.Version()
	if err != nil {
		return err
	}
	log.Printf("schema version: %s", v)
	return nil
}
