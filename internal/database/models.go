package database

import (
	"time"
)

// Checkpoint records how far a migration has progressed for a given
// (target room, source channel) pair. One row per pair; each successful run
// overwrites the row rather than appending.
//
// LastPostAt is the source creation timestamp (epoch milliseconds) of the
// last post actually emitted to the target, not merely fetched. It is
// monotonically non-decreasing across successful runs.
type Checkpoint struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	RoomID      string `db:"room_id"`
	ChannelID   string `db:"channel_id"`
	SourceURL   string `db:"source_url"`
	TeamName    string `db:"team_name"`
	ChannelName string `db:"channel_name"`

	LastPostAt    int64     `db:"last_post_at"`
	LastPostID    string    `db:"last_post_id"`
	TotalImported int64     `db:"total_imported"`
	LastRunAt     time.Time `db:"last_run_at"`
}
