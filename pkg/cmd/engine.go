// Package cmd wires the engine and its backends from command-line
// configuration. It is shared by every binary so flags mean the same thing
// everywhere.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/chroniclehq/chronicle/pkg/approval"
	"github.com/chroniclehq/chronicle/pkg/audit"
	"github.com/chroniclehq/chronicle/pkg/config"
	"github.com/chroniclehq/chronicle/pkg/engine"
	"github.com/chroniclehq/chronicle/pkg/locks"
	lockredis "github.com/chroniclehq/chronicle/pkg/locks/redis"
	"github.com/chroniclehq/chronicle/pkg/persistence"
	"github.com/chroniclehq/chronicle/pkg/snapshot"
)

// EngineConfig carries everything needed to assemble a running engine.
type EngineConfig struct {
	DatabaseURL      string
	SigningKey       string
	PolicyPath       string
	NotifierProvider string
	RedisURL         string
	SnapshotInterval int64
	SnapshotKeep     int
	ServiceName      string
	Tracer           trace.Tracer
}

// NewEngine builds the engine and returns it with its persistence handle so
// callers can close it on shutdown.
func NewEngine(ctx context.Context, logger *slog.Logger, cfg EngineConfig) (*engine.Engine, persistence.Persistence, error) {
	store, err := NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize persistence: %w", err)
	}

	signer, err := audit.NewSigner([]byte(cfg.SigningKey))
	if err != nil {
		return nil, nil, err
	}

	policy, err := config.LoadPolicyOrDefault(cfg.PolicyPath)
	if err != nil {
		return nil, nil, err
	}

	assessor, err := approval.NewAssessor(policy)
	if err != nil {
		return nil, nil, err
	}

	notifier, err := NewNotifier(cfg.NotifierProvider, cfg.ServiceName, logger)
	if err != nil {
		return nil, nil, err
	}

	locker, err := NewLocker(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(engine.Config{
		Persistence:    store,
		Signer:         signer,
		Snapshots:      snapshot.NewManager(store.Snapshots(), logger, cfg.SnapshotInterval, cfg.SnapshotKeep),
		Gate:           approval.NewGate(store.Approvals(), assessor, logger),
		Notifier:       notifier,
		Locker:         locker,
		Tracer:         cfg.Tracer,
		Logger:         logger,
		RetryBaseDelay: time.Second,
	})
	if err != nil {
		return nil, nil, err
	}

	return eng, store, nil
}

// NewLocker returns a Redis-backed distributed locker, or nil when no Redis
// URL is configured (resource locking then degrades to a no-op).
func NewLocker(redisURL string) (locks.Locker, error) {
	if redisURL == "" {
		return nil, nil
	}

	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return lockredis.NewLocker(goredis.NewClient(options)), nil
}
