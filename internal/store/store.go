// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"

	"github.com/ashureev/autopdf/internal/config"
	"github.com/ashureev/autopdf/internal/domain"
)

// Repository defines the interface for persisting agent records and user preferences.
type Repository interface {
	// CreateAgent stores a newly created agent. CreatedAt/UpdatedAt are set when zero.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// ListAgents returns all agents, newest first.
	ListAgents(ctx context.Context) ([]*domain.Agent, error)

	// GetAgent retrieves an agent by its upstream ID. Returns nil, nil when absent.
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)

	// GetPreference retrieves a user preference. Returns nil, nil when unset.
	GetPreference(ctx context.Context, userID, key string) (*domain.Preference, error)

	// SetPreference creates or replaces a user preference.
	SetPreference(ctx context.Context, pref *domain.Preference) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Open returns the repository selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Repository, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		return NewSQLite(cfg.DBPath)
	case config.StoreMongo:
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
