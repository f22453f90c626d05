package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattergrate/mattergrate/internal/mattermost"
)

// composeBody builds the message text emitted to the target. When the author
// was resolved to a real target account, the account itself carries
// authorship and the body only gets a light provenance annotation; otherwise
// the header names the original author and time.
func composeBody(user *mattermost.User, post mattermost.Post, resolved bool) string {
	ts := formatTimestamp(post.CreateAt)
	if resolved {
		return fmt.Sprintf("_%s (imported from Mattermost)_\n\n%s", ts, post.Message)
	}

	name, username := displayName(user)
	return fmt.Sprintf("**%s (%s) — %s**\n\n%s", name, username, ts, post.Message)
}

// displayName derives a human-readable author name, falling back through
// "first last", nickname, and username.
func displayName(user *mattermost.User) (name, username string) {
	if user == nil {
		return "unknown", "unknown"
	}

	username = user.Username
	switch {
	case user.FirstName != "" && user.LastName != "":
		name = user.FirstName + " " + user.LastName
	case user.Nickname != "":
		name = user.Nickname
	default:
		name = username
	}
	return name, username
}

func formatTimestamp(epochMs int64) string {
	return time.UnixMilli(epochMs).UTC().Format("2006-01-02 15:04")
}

func uploadedNote(names []string) string {
	return fmt.Sprintf("_Uploaded: %s_", strings.Join(names, ", "))
}
