// Package postgresql provides PostgreSQL persistence for the event log,
// snapshots, approvals and workflow metadata.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/chroniclehq/chronicle/pkg/persistence"
	"github.com/chroniclehq/chronicle/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	events    *EventRepository
	snapshots *SnapshotRepository
	approvals *ApprovalRepository
	metadata  *MetadataRepository
}

// NewPersistence connects, migrates and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:        database,
		logger:    logger,
		events:    NewEventRepository(database, logger),
		snapshots: NewSnapshotRepository(database, logger),
		approvals: NewApprovalRepository(database, logger),
		metadata:  NewMetadataRepository(database, logger),
	}, nil
}

func (p *Persistence) Events() persistence.EventRepository {
	return p.events
}

func (p *Persistence) Archive() persistence.ArchiveRepository {
	return p.events
}

func (p *Persistence) Snapshots() persistence.SnapshotRepository {
	return p.snapshots
}

func (p *Persistence) Approvals() persistence.ApprovalRepository {
	return p.approvals
}

func (p *Persistence) Metadata() persistence.MetadataRepository {
	return p.metadata
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
