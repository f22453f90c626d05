package mattermost

// Post is a single message in a Mattermost channel.
// CreateAt is epoch milliseconds. RootID, when non-empty, names the post this
// one replies to. Type is empty for normal user posts; any other value marks
// a system-generated event.
type Post struct {
	ID        string   `json:"id"`
	CreateAt  int64    `json:"create_at"`
	UpdateAt  int64    `json:"update_at"`
	UserID    string   `json:"user_id"`
	ChannelID string   `json:"channel_id"`
	RootID    string   `json:"root_id"`
	Message   string   `json:"message"`
	Type      string   `json:"type"`
	FileIDs   []string `json:"file_ids,omitempty"`
}

// IsSystem reports whether the post is a system-generated event
// (join/leave/header changes and the like) rather than a user message.
func (p Post) IsSystem() bool {
	return p.Type != ""
}

// User is a Mattermost account profile. Email is only populated when the
// authenticated caller is permitted to see it.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Nickname  string `json:"nickname"`
	Email     string `json:"email"`
}

// FileInfo is attachment metadata for a single uploaded file.
type FileInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`
}

// postList mirrors the /channels/{id}/posts response shape: an ordered list
// of post IDs plus a map from ID to post.
type postList struct {
	Order []string        `json:"order"`
	Posts map[string]Post `json:"posts"`
}

type idResponse struct {
	ID string `json:"id"`
}
