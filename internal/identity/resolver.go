// Package identity maps source-system authors to target-system accounts.
//
// Resolution walks a fixed strategy chain, first hit wins: an operator
// supplied mapping table, then an automatic directory match, then the
// unresolved sentinel (post as administrator with a provenance header). Each
// strategy failing on its own, through misconfiguration or a directory
// error, never breaks the rest of the chain.
package identity

import (
	"context"
	"log/slog"

	"github.com/mattergrate/mattergrate/internal/config"
	"github.com/mattergrate/mattergrate/internal/mattermost"
	"github.com/mattergrate/mattergrate/internal/rocketchat"
)

// Directory is the target-system account lookup used by the automatic
// matching strategy.
type Directory interface {
	UserByUsername(ctx context.Context, username string) (*rocketchat.User, error)
	UserByEmail(ctx context.Context, email string) (*rocketchat.User, error)
}

// Identity is a resolved target account.
type Identity struct {
	UserID   string
	Username string
}

// Resolver resolves source users to target accounts, caching every outcome
// (including "unresolved") by source username for its lifetime. Create one
// per run; a resolver reused across runs would serve stale identities to
// users renamed in between.
type Resolver struct {
	directory Directory
	mapping   map[string]string
	matchBy   config.MatchMode
	cache     map[string]*Identity
	logger    *slog.Logger
}

// NewResolver creates a resolver using the given directory, the operator's
// source→target mapping table (keyed by username, or by email when matchBy
// is email mode), and the match mode.
func NewResolver(directory Directory, mapping map[string]string, matchBy config.MatchMode, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		directory: directory,
		mapping:   mapping,
		matchBy:   matchBy,
		cache:     map[string]*Identity{},
		logger:    logger.With("component", "identity"),
	}
}

// Resolve returns the target account for a source user, or nil when no
// account could be determined. Directory errors are logged and treated as
// no-match for that strategy.
func (r *Resolver) Resolve(ctx context.Context, user *mattermost.User) *Identity {
	if user == nil || user.Username == "" {
		return nil
	}

	if id, ok := r.cache[user.Username]; ok {
		return id
	}

	id := r.resolve(ctx, user)
	r.cache[user.Username] = id
	return id
}

func (r *Resolver) resolve(ctx context.Context, user *mattermost.User) *Identity {
	// Strategy 1: operator mapping table.
	if target, ok := r.lookupMapping(user); ok {
		if id := r.byUsername(ctx, target); id != nil {
			r.logger.Debug("Resolved via mapping table",
				"source_username", user.Username, "target_username", id.Username)
			return id
		}
		r.logger.Warn("Mapping table names a target account that does not exist",
			"source_username", user.Username, "mapped_to", target)
	}

	// Strategy 2: automatic directory match.
	switch r.matchBy {
	case config.MatchByEmail:
		if user.Email == "" {
			break
		}
		if id := r.byEmail(ctx, user.Email); id != nil {
			r.logger.Debug("Resolved via email match",
				"source_username", user.Username, "target_username", id.Username)
			return id
		}
	default:
		if id := r.byUsername(ctx, user.Username); id != nil {
			r.logger.Debug("Resolved via username match",
				"source_username", user.Username)
			return id
		}
	}

	// Strategy 3: unresolved.
	r.logger.Debug("No target account found", "source_username", user.Username)
	return nil
}

func (r *Resolver) lookupMapping(user *mattermost.User) (string, bool) {
	if len(r.mapping) == 0 {
		return "", false
	}

	key := user.Username
	if r.matchBy == config.MatchByEmail {
		key = user.Email
	}
	target, ok := r.mapping[key]
	return target, ok && target != ""
}

func (r *Resolver) byUsername(ctx context.Context, username string) *Identity {
	account, err := r.directory.UserByUsername(ctx, username)
	if err != nil {
		r.logger.Debug("Directory lookup by username failed", "username", username, "error", err)
		return nil
	}
	return &Identity{UserID: account.ID, Username: account.Username}
}

func (r *Resolver) byEmail(ctx context.Context, email string) *Identity {
	account, err := r.directory.UserByEmail(ctx, email)
	if err != nil {
		r.logger.Debug("Directory lookup by email failed", "email", email, "error", err)
		return nil
	}
	return &Identity{UserID: account.ID, Username: account.Username}
}
