// Package main provides the Chronicle archiver: a scheduled job that moves
// cold events from hot storage into the archive tier.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/chroniclehq/chronicle/pkg/archive"
	"github.com/chroniclehq/chronicle/pkg/cmd"
	"github.com/chroniclehq/chronicle/pkg/log"
)

func main() {
	logger := log.WithModule("archiver")

	command := &cli.Command{
		Name:                  "chronicle-archiver",
		Usage:                 "Move old workflow events into the archive tier",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://... or a filesystem path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.IntFlag{
				Name:    "retention-days",
				Usage:   "Days events stay in hot storage",
				Value:   archive.DefaultRetentionDays,
				Sources: cli.EnvVars("RETENTION_DAYS"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron schedule for archival runs",
				Value:   "@daily",
				Sources: cli.EnvVars("ARCHIVE_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single archival pass and exit",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := store.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			job := archive.NewJob(store, logger, command.Int("retention-days"))

			if command.Bool("once") {
				_, err := job.Run(ctx, time.Now().UTC())

				return err
			}

			scheduler := cron.New()

			_, err = scheduler.AddFunc(command.String("schedule"), func() {
				_, err := job.Run(ctx, time.Now().UTC())
				if err != nil {
					logger.ErrorContext(ctx, "Archival run failed", "error", err)
				}
			})
			if err != nil {
				return err
			}

			scheduler.Start()
			defer scheduler.Stop()

			logger.InfoContext(ctx, "Archiver started", "schedule", command.String("schedule"))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
