package rocketchat

// User is a Rocket.Chat account as returned by the admin directory lookups.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Message describes a message to create in a room. SenderID selects the
// account the message should appear under; when impersonation is not
// possible the client posts as the administrator with Alias shown instead.
// ThreadID, when non-empty, attaches the message to an existing thread.
type Message struct {
	RoomID   string
	SenderID string
	Alias    string
	Text     string
	ThreadID string
}

type userInfoResponse struct {
	User    User   `json:"user"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type userListResponse struct {
	Users   []User `json:"users"`
	Success bool   `json:"success"`
}

type postMessageRequest struct {
	RoomID  string `json:"roomId,omitempty"`
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
	Alias   string `json:"alias,omitempty"`
	TMID    string `json:"tmid,omitempty"`
}

type postMessageResponse struct {
	Message struct {
		ID string `json:"_id"`
	} `json:"message"`
	Success bool `json:"success"`
}

type createTokenResponse struct {
	Data struct {
		UserID    string `json:"userId"`
		AuthToken string `json:"authToken"`
	} `json:"data"`
	Success bool `json:"success"`
}
