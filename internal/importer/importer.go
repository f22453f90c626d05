// Package importer drives the migration of a Mattermost channel's history
// into a Rocket.Chat room: checkpoint-bounded fetching, chronological
// ordering, identity resolution, thread reconstruction, attachment transfer,
// and checkpoint persistence.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mattergrate/mattergrate/internal/database"
	"github.com/mattergrate/mattergrate/internal/identity"
	"github.com/mattergrate/mattergrate/internal/mattermost"
	"github.com/mattergrate/mattergrate/internal/rocketchat"
)

// Source is the read side of the migration, satisfied by mattermost.Client.
type Source interface {
	BaseURL() string
	TeamByName(ctx context.Context, name string) (string, error)
	ChannelByName(ctx context.Context, teamID, name string) (string, error)
	ChannelPosts(ctx context.Context, channelID string, since int64) ([]mattermost.Post, error)
	User(ctx context.Context, userID string) (*mattermost.User, error)
	FileInfo(ctx context.Context, fileID string) (*mattermost.FileInfo, error)
	File(ctx context.Context, fileID string) ([]byte, error)
	FileURL(fileID string) string
}

// Target is the write side of the migration, satisfied by rocketchat.Client.
type Target interface {
	AdminID() string
	PostMessage(ctx context.Context, msg rocketchat.Message) (string, error)
	UploadFile(ctx context.Context, roomID, filename string, data []byte) error
	Notify(ctx context.Context, text string) error
}

// Resolver maps source authors to target accounts, satisfied by
// identity.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, user *mattermost.User) *identity.Identity
}

// Job names the channel to migrate and the room to migrate it into.
type Job struct {
	RoomID      string
	TeamName    string
	ChannelName string
}

// Summary is the per-run accounting reported to the operator.
type Summary struct {
	RunID       string
	Incremental bool
	Found       int
	Imported    int
	Threaded    int
	Skipped     int
	Errors      int
	// TotalImported is the cumulative count for this (room, channel) pair
	// across all runs, including this one.
	TotalImported int64
}

// Options tune the importer's pacing and reporting.
type Options struct {
	// MessageDelay is slept between messages to respect source rate limits.
	MessageDelay time.Duration
	// ProgressEvery emits a progress notification after this many imports.
	ProgressEvery int
}

// Importer migrates one channel per Run call. Safe to reuse across runs; all
// run-scoped caches (user profiles, identity results, the thread map) are
// created fresh inside Run, so nothing stale survives between invocations.
type Importer struct {
	source   Source
	target   Target
	store    database.Store
	resolver func() Resolver
	opts     Options
	logger   *slog.Logger
}

// New creates an Importer. newResolver is called once per run so that
// identity caches never outlive the run that populated them.
func New(source Source, target Target, store database.Store, newResolver func() Resolver, opts Options, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 50
	}
	return &Importer{
		source:   source,
		target:   target,
		store:    store,
		resolver: newResolver,
		opts:     opts,
		logger:   logger.With("component", "importer"),
	}
}

// run carries the state of a single Run invocation.
type run struct {
	job      Job
	resolver Resolver
	// users caches source profiles by author ID for the run's lifetime.
	users map[string]*mattermost.User
	// threads maps source post IDs to generated target message IDs, in
	// emission order. Never persisted: a reply whose root was imported in a
	// previous run is emitted as a top-level message.
	threads map[string]string
}

// Run executes a full migration pass and returns its summary. Fatal errors
// (unresolvable team or channel, a failed initial fetch, a failed checkpoint
// write) abort the run; per-message failures are counted and skipped over.
func (i *Importer) Run(ctx context.Context, job Job) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()[:8]}
	log := i.logger.With("run_id", summary.RunID, "team", job.TeamName, "channel", job.ChannelName, "room_id", job.RoomID)

	teamID, err := i.source.TeamByName(ctx, job.TeamName)
	if err != nil {
		return summary, fmt.Errorf("team %q not found: %w", job.TeamName, err)
	}

	channelID, err := i.source.ChannelByName(ctx, teamID, job.ChannelName)
	if err != nil {
		return summary, fmt.Errorf("channel %q not found in team %q: %w", job.ChannelName, job.TeamName, err)
	}

	cp, err := i.store.GetCheckpoint(ctx, job.RoomID, channelID)
	if err != nil {
		return summary, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var since int64
	if cp != nil {
		since = cp.LastPostAt
		summary.Incremental = true
		summary.TotalImported = cp.TotalImported
		log.Info("Previous import found, fetching incrementally",
			"since", since, "total_imported", cp.TotalImported, "last_run_at", cp.LastRunAt)
		i.notify(ctx, fmt.Sprintf("Found previous import (%d messages). Fetching only new messages...", cp.TotalImported))
	} else {
		log.Info("No previous import found, fetching full history")
		i.notify(ctx, fmt.Sprintf("Starting import from **%s/%s**. No previous import found, fetching all messages...", job.TeamName, job.ChannelName))
	}

	posts, err := i.source.ChannelPosts(ctx, channelID, since)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch posts: %w", err)
	}
	summary.Found = len(posts)

	if len(posts) == 0 {
		log.Info("Nothing new to import")
		if summary.Incremental {
			i.notify(ctx, "No new messages found since last import.")
		} else {
			i.notify(ctx, "No messages found in the channel.")
		}
		return summary, nil
	}

	// Oldest first, so a reply's root is always emitted (and present in the
	// thread map) before the reply itself.
	sort.SliceStable(posts, func(a, b int) bool {
		return posts[a].CreateAt < posts[b].CreateAt
	})

	log.Info("Starting import", "found", len(posts))
	i.notify(ctx, fmt.Sprintf("Found **%d** messages. Starting import...", len(posts)))

	st := &run{
		job:      job,
		resolver: i.resolver(),
		users:    map[string]*mattermost.User{},
		threads:  map[string]string{},
	}

	var last *mattermost.Post
	for idx := range posts {
		post := posts[idx]

		if post.IsSystem() {
			summary.Skipped++
			continue
		}

		threadID := ""
		if post.RootID != "" {
			threadID = st.threads[post.RootID]
		}

		msgID, err := i.importPost(ctx, st, post, threadID)
		if err != nil {
			summary.Errors++
			log.Error("Failed to import post", "post_id", post.ID, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if msgID != "" {
			st.threads[post.ID] = msgID
		}
		if threadID != "" {
			summary.Threaded++
		}

		summary.Imported++
		last = &posts[idx]

		if summary.Imported%i.opts.ProgressEvery == 0 {
			i.notify(ctx, fmt.Sprintf("Progress: %d/%d messages imported...", summary.Imported, len(posts)))
		}

		if err := sleepCtx(ctx, i.opts.MessageDelay); err != nil {
			log.Warn("Import interrupted", "error", err)
			break
		}
	}

	// A run with zero successful emissions must not perturb the checkpoint.
	if last != nil {
		next := &database.Checkpoint{
			RoomID:        job.RoomID,
			ChannelID:     channelID,
			SourceURL:     i.source.BaseURL(),
			TeamName:      job.TeamName,
			ChannelName:   job.ChannelName,
			LastPostAt:    last.CreateAt,
			LastPostID:    last.ID,
			TotalImported: int64(summary.Imported),
			LastRunAt:     time.Now().UTC(),
		}
		if cp != nil {
			next.CreatedAt = cp.CreatedAt
			next.TotalImported += cp.TotalImported
		}
		// The checkpoint must land even when the run was interrupted, or the
		// messages already posted this run get re-imported next time.
		if err := i.store.SaveCheckpoint(context.WithoutCancel(ctx), next); err != nil {
			return summary, fmt.Errorf("failed to save checkpoint: %w", err)
		}
		summary.TotalImported = next.TotalImported
	}

	log.Info("Import complete",
		"imported", summary.Imported,
		"threaded", summary.Threaded,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"total_imported", summary.TotalImported)
	i.notify(ctx, summary.Text())

	return summary, ctx.Err()
}

// importPost emits one post to the target and returns the generated message
// ID ("" when the target does not report one).
func (i *Importer) importPost(ctx context.Context, st *run, post mattermost.Post, threadID string) (string, error) {
	user := i.userFor(ctx, st, post.UserID)
	resolved := st.resolver.Resolve(ctx, user)

	text := composeBody(user, post, resolved != nil)

	uploaded, fallbacks := i.transferAttachments(ctx, st.job.RoomID, post)
	for _, link := range fallbacks {
		text += "\n\n" + link
	}
	if len(uploaded) > 0 {
		text += "\n\n" + uploadedNote(uploaded)
	}

	msg := rocketchat.Message{
		RoomID:   st.job.RoomID,
		Text:     text,
		ThreadID: threadID,
	}
	if resolved != nil {
		msg.SenderID = resolved.UserID
		msg.Alias = resolved.Username
	}

	return i.target.PostMessage(ctx, msg)
}

// userFor fetches and caches a source user profile. A fetch failure is
// logged and yields nil; the post is still imported with an unknown author.
func (i *Importer) userFor(ctx context.Context, st *run, userID string) *mattermost.User {
	if user, ok := st.users[userID]; ok {
		return user
	}

	user, err := i.source.User(ctx, userID)
	if err != nil {
		i.logger.Warn("Failed to fetch source user", "user_id", userID, "error", err)
		return nil
	}

	st.users[userID] = user
	return user
}

// notify sends a one-off message to the operator. Notification failures are
// logged and never affect the run.
func (i *Importer) notify(ctx context.Context, text string) {
	if err := i.target.Notify(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
		i.logger.Warn("Failed to send notification", "error", err)
	}
}

// Text renders the end-of-run report sent to the operator.
func (s *Summary) Text() string {
	return fmt.Sprintf("**Import complete!**\n"+
		"- Imported: %d messages\n"+
		"- Threaded replies: %d\n"+
		"- Errors: %d\n"+
		"- Skipped (system messages): %d\n"+
		"- Total imported to this room: %d messages",
		s.Imported, s.Threaded, s.Errors, s.Skipped, s.TotalImported)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
