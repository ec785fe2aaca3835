package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/chroniclehq/chronicle/pkg/persistence"
	"github.com/chroniclehq/chronicle/pkg/persistence/file"
	"github.com/chroniclehq/chronicle/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme.
// postgres://... uses PostgreSQL; anything else is treated as a filesystem
// root for the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}
