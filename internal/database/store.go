package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for checkpoint persistence.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetCheckpoint retrieves the checkpoint for a (room, channel) pair.
	// Returns nil, nil if no checkpoint exists yet.
	GetCheckpoint(ctx context.Context, roomID, channelID string) (*Checkpoint, error)

	// SaveCheckpoint inserts or overwrites the checkpoint for its
	// (room, channel) pair.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// ListCheckpoints retrieves all stored checkpoints, most recently run first.
	ListCheckpoints(ctx context.Context) ([]Checkpoint, error)

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint for a (room, channel) pair.
func (s *sqlxStore) GetCheckpoint(ctx context.Context, roomID, channelID string) (*Checkpoint, error) {
	query := `SELECT * FROM import_checkpoints WHERE room_id = ? AND channel_id = ?`

	var cp Checkpoint
	err := s.db.GetContext(ctx, &cp, query, roomID, channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("No checkpoint found", "room_id", roomID, "channel_id", channelID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return &cp, nil
}

// SaveCheckpoint inserts or overwrites the checkpoint for its (room, channel) pair.
func (s *sqlxStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return errors.New("cannot save nil checkpoint")
	}

	now := time.Now().UTC()
	cp.UpdatedAt = now
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}

	query := `
		INSERT INTO import_checkpoints (
			room_id, channel_id, source_url, team_name, channel_name,
			last_post_at, last_post_id, total_imported, last_run_at,
			created_at, updated_at
		) VALUES (
			:room_id, :channel_id, :source_url, :team_name, :channel_name,
			:last_post_at, :last_post_id, :total_imported, :last_run_at,
			:created_at, :updated_at
		)
		ON CONFLICT (room_id, channel_id) DO UPDATE SET
			source_url = excluded.source_url,
			team_name = excluded.team_name,
			channel_name = excluded.channel_name,
			last_post_at = excluded.last_post_at,
			last_post_id = excluded.last_post_id,
			total_imported = excluded.total_imported,
			last_run_at = excluded.last_run_at,
			updated_at = excluded.updated_at`

	if _, err := s.db.NamedExecContext(ctx, query, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	s.logger.Debug("Checkpoint saved",
		"room_id", cp.RoomID,
		"channel_id", cp.ChannelID,
		"last_post_at", cp.LastPostAt,
		"total_imported", cp.TotalImported)
	return nil
}

// ListCheckpoints retrieves all stored checkpoints, most recently run first.
func (s *sqlxStore) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	query := `SELECT * FROM import_checkpoints ORDER BY last_run_at DESC`

	var cps []Checkpoint
	if err := s.db.SelectContext(ctx, &cps, query); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	return cps, nil
}

// RunMaintenance performs database maintenance tasks like VACUUM.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	s.logger.Debug("Running database maintenance")

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}

	s.logger.Info("Database maintenance completed")
	return nil
}
