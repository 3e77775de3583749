package domain

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleSystem only appears in assembled prompts, never in stored history.
	RoleSystem Role = "system"
)

// ChatTurn is a single message in a conversation.
type ChatTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// History is the ordered, append-only list of turns in a session.
type History []ChatTurn

// Clone returns a copy that does not share backing storage with h.
func (h History) Clone() History {
	if h == nil {
		return History{}
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}
