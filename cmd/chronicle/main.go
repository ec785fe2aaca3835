package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/chroniclehq/chronicle/pkg/cmd"
	"github.com/chroniclehq/chronicle/pkg/log"
	"github.com/chroniclehq/chronicle/pkg/otelhelper"
)

const defaultPort = 9191

func main() {
	logger := log.WithModule("chronicle")

	command := &cli.Command{
		Name:                  "chronicle",
		Usage:                 "Event-sourced workflow state engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://... or a filesystem path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "signing-key",
				Usage:    "HMAC key for event signatures",
				Required: true,
				Sources:  cli.EnvVars("SIGNING_KEY"),
			},
			&cli.StringFlag{
				Name:    "policy-path",
				Usage:   "Path to the risk policy YAML (built-in default policy when empty)",
				Sources: cli.EnvVars("POLICY_PATH"),
			},
			&cli.StringFlag{
				Name:    "notifier",
				Usage:   "Approval notification channels, comma separated (kafka, gochannel, none)",
				Value:   "none",
				Sources: cli.EnvVars("NOTIFIER"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for distributed resource locks (disabled when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "snapshot-interval",
				Usage:   "Create a snapshot every N events",
				Value:   10,
				Sources: cli.EnvVars("SNAPSHOT_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "snapshot-keep",
				Usage:   "Snapshots retained per workflow",
				Value:   3,
				Sources: cli.EnvVars("SNAPSHOT_KEEP"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for the approval expiry sweep",
				Value:   "@every 1m",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export engine spans over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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

			logger.InfoContext(ctx, "Initializing Chronicle API")

			var tracer trace.Tracer

			if command.Bool("otel-enabled") {
				tracerProvider, err := otelhelper.InitTracer(ctx, "chronicle")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					err := tracerProvider.Shutdown(ctx)
					if err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()

				tracer = tracerProvider.Tracer("chronicle")
			}

			eng, store, err := cmd.NewEngine(ctx, logger, cmd.EngineConfig{
				DatabaseURL:      command.String("database-url"),
				SigningKey:       command.String("signing-key"),
				PolicyPath:       command.String("policy-path"),
				NotifierProvider: command.String("notifier"),
				RedisURL:         command.String("redis-url"),
				SnapshotInterval: int64(command.Int("snapshot-interval")),
				SnapshotKeep:     command.Int("snapshot-keep"),
				ServiceName:      "chronicle",
				Tracer:           tracer,
			})
			if err != nil {
				return err
			}

			defer func() {
				err := store.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			api := NewAPI(logger, eng)

			sweeper, err := api.StartSweep(ctx, command.String("sweep-schedule"))
			if err != nil {
				return err
			}
			defer sweeper.Stop()

			return api.Start(command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
